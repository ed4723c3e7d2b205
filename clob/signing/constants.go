package signing

const (
	// ClobDomainName ClobAuth 的 EIP712 域名
	ClobDomainName = "ClobAuthDomain"
	ClobVersion    = "1"
	// MsgToSign ClobAuth 固定签名消息
	MsgToSign = "This message attests that I control the given wallet"

	// ExchangeDomainName 订单签名的 EIP712 域名
	ExchangeDomainName = "Polymarket CTF Exchange"
	ExchangeVersion    = "1"
)
