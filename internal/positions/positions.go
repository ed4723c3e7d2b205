// Package positions 查询持仓（data-api）与 USDC 余额（链上 balanceOf）。
package positions

import (
	"context"
	"math/big"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/pkg/fetch"
	"github.com/betbot/copybot/pkg/pacing"
)

// DefaultDataAPIHost data-api 地址
const DefaultDataAPIHost = "https://data-api.polymarket.com"

// USDCDecimals 抵押品精度
const USDCDecimals = 6

// ERC20ABI 只需要 balanceOf
const ERC20ABI = `[{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`

// ContractCaller 只读合约调用（*ethclient.Client 满足）
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Service 持仓/余额查询
type Service struct {
	host       string
	reads      fetch.Fetcher
	caller     ContractCaller
	collateral common.Address
	erc20      abi.ABI
	log        logrus.FieldLogger
}

// New 创建查询服务；caller 为 nil 时 Balance 不可用
func New(host string, reads fetch.Fetcher, caller ContractCaller, collateral common.Address, log logrus.FieldLogger) (*Service, error) {
	parsed, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, errors.Wrap(err, "解析 ERC20 ABI 失败")
	}
	if host == "" {
		host = DefaultDataAPIHost
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		host:       strings.TrimRight(host, "/"),
		reads:      reads,
		caller:     caller,
		collateral: collateral,
		erc20:      parsed,
		log:        log.WithField("component", "positions"),
	}, nil
}

// Positions 返回 user 的全部持仓
func (s *Service) Positions(ctx context.Context, user string) ([]domain.OwnPosition, error) {
	q := url.Values{}
	q.Set("user", user)
	var out []domain.OwnPosition
	if err := s.reads.GetJSON(ctx, s.host+"/positions?"+q.Encode(), pacing.ClassRead, &out); err != nil {
		return nil, errors.Wrapf(err, "获取持仓失败 user=%s", user)
	}
	return out, nil
}

// Balance 返回 wallet 的 USDC 余额（已按 6 位精度换算）
func (s *Service) Balance(ctx context.Context, wallet common.Address) (float64, error) {
	if s.caller == nil {
		return 0, errors.New("未配置 RPC，无法查询余额")
	}
	data, err := s.erc20.Pack("balanceOf", wallet)
	if err != nil {
		return 0, errors.Wrap(err, "打包 balanceOf 失败")
	}
	to := s.collateral
	result, err := s.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return 0, errors.Wrap(err, "调用 balanceOf 失败")
	}
	var balance *big.Int
	if err := s.erc20.UnpackIntoInterface(&balance, "balanceOf", result); err != nil {
		return 0, errors.Wrap(err, "解析 balanceOf 结果失败")
	}
	return ToFloat(balance), nil
}

// ToFloat 把 6 位精度的链上数量换算成浮点
func ToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), big.NewFloat(1e6)).Float64()
	return f
}
