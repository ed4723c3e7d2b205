package client

import (
	"github.com/ethereum/go-ethereum/common"
	orderconfig "github.com/polymarket/go-order-utils/pkg/config"
	"github.com/pkg/errors"

	"github.com/betbot/copybot/clob/types"
)

const (
	// CollateralTokenDecimals USDC 精度
	CollateralTokenDecimals = 6
	// ConditionalTokenDecimals 条件代币精度
	ConditionalTokenDecimals = 6
)

// ExchangeAddress 订单签名使用的交易所合约，负风险市场使用 NegRisk 交易所
func ExchangeAddress(chainID types.Chain, negRisk bool) (common.Address, error) {
	contracts, err := orderconfig.GetContracts(int64(chainID))
	if err != nil {
		return common.Address{}, errors.Wrapf(err, "不支持的链 ID: %d", chainID)
	}
	if negRisk {
		return contracts.NegRiskExchange, nil
	}
	return contracts.Exchange, nil
}

// CollateralAddress 抵押品（USDC）合约地址
func CollateralAddress(chainID types.Chain) (common.Address, error) {
	contracts, err := orderconfig.GetContracts(int64(chainID))
	if err != nil {
		return common.Address{}, errors.Wrapf(err, "不支持的链 ID: %d", chainID)
	}
	return contracts.Collateral, nil
}
