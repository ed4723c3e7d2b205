package signing

import (
	"crypto/ecdsa"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/copybot/clob/types"
)

// CreateL1Headers L1 认证头（ClobAuth EIP712 签名），用于派生 API 密钥
func CreateL1Headers(privateKey *ecdsa.PrivateKey, chainID types.Chain, nonce int64, now time.Time) (*types.L1PolyHeader, error) {
	ts := now.Unix()
	sig, err := BuildClobEip712Signature(privateKey, chainID, ts, nonce)
	if err != nil {
		return nil, errors.Wrap(err, "构建 EIP712 签名失败")
	}
	return &types.L1PolyHeader{
		PolyAddress:   GetAddressFromPrivateKey(privateKey).Hex(),
		PolySignature: sig,
		PolyTimestamp: strconv.FormatInt(ts, 10),
		PolyNonce:     strconv.FormatInt(nonce, 10),
	}, nil
}

// CreateL2Headers L2 认证头（API 密钥 HMAC）
func CreateL2Headers(privateKey *ecdsa.PrivateKey, creds *types.ApiKeyCreds, args types.L2HeaderArgs, now time.Time) (*types.L2PolyHeader, error) {
	if !creds.Valid() {
		return nil, errors.New("L2 认证不可用: API 凭证未配置")
	}
	ts := now.Unix()
	sig, err := BuildPolyHmacSignature(creds.Secret, ts, args.Method, args.RequestPath, args.Body)
	if err != nil {
		return nil, errors.Wrap(err, "构建 HMAC 签名失败")
	}
	return &types.L2PolyHeader{
		PolyAddress:    GetAddressFromPrivateKey(privateKey).Hex(),
		PolySignature:  sig,
		PolyTimestamp:  strconv.FormatInt(ts, 10),
		PolyAPIKey:     creds.Key,
		PolyPassphrase: creds.Passphrase,
	}, nil
}
