package positions

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/copybot/pkg/pacing"
)

type stubFetcher struct {
	url   string
	class pacing.Class
	body  string
}

func (s *stubFetcher) Get(_ context.Context, url string, class pacing.Class) ([]byte, error) {
	s.url, s.class = url, class
	return []byte(s.body), nil
}

func (s *stubFetcher) GetJSON(ctx context.Context, url string, class pacing.Class, out interface{}) error {
	b, _ := s.Get(ctx, url, class)
	return json.Unmarshal(b, out)
}

type stubCaller struct {
	to   common.Address
	data []byte
	ret  *big.Int
}

func (s *stubCaller) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	s.to = *call.To
	s.data = call.Data
	return common.LeftPadBytes(s.ret.Bytes(), 32), nil
}

func TestPositions(t *testing.T) {
	f := &stubFetcher{body: `[{"asset":"123","conditionId":"0xc","size":12.5,"avgPrice":0.4,"currentValue":6,"curPrice":0.48}]`}
	svc, err := New("https://data.example/", f, nil, common.Address{}, nil)
	require.NoError(t, err)

	got, err := svc.Positions(context.Background(), "0xUser")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://data.example/positions?user=0xUser", f.url)
	assert.Equal(t, pacing.ClassRead, f.class)
	assert.Equal(t, "0xc", got[0].ConditionID)
	assert.InDelta(t, 5.0, got[0].Value(), 1e-9)
}

func TestBalance(t *testing.T) {
	collateral := common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	wallet := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	caller := &stubCaller{ret: big.NewInt(12_345_678)}
	svc, err := New("", &stubFetcher{}, caller, collateral, nil)
	require.NoError(t, err)

	bal, err := svc.Balance(context.Background(), wallet)
	require.NoError(t, err)
	assert.InDelta(t, 12.345678, bal, 1e-9)
	assert.Equal(t, collateral, caller.to)
	// selector balanceOf(address) = 0x70a08231
	require.Len(t, caller.data, 4+32)
	assert.Equal(t, []byte{0x70, 0xa0, 0x82, 0x31}, caller.data[:4])
	assert.Equal(t, wallet.Bytes(), caller.data[4+12:])
}

func TestBalanceWithoutRPC(t *testing.T) {
	svc, err := New("", &stubFetcher{}, nil, common.Address{}, nil)
	require.NoError(t, err)
	_, err = svc.Balance(context.Background(), common.Address{})
	assert.Error(t, err)
}
