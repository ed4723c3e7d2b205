package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/copybot/internal/sizing"
)

const (
	testTrader = "0x1111111111111111111111111111111111111111"
	testFunder = "0x2222222222222222222222222222222222222222"
	testKey    = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
)

// clearEnv 屏蔽宿主机上可能存在的同名环境变量
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PRIVATE_KEY", "MNEMONIC", "DERIVATION_PATH", "PROXY_WALLET", "SIGNATURE_TYPE",
		"CLOB_HTTP_URL", "CHAIN_ID", "CLOB_API_KEY", "CLOB_SECRET", "CLOB_PASS_PHRASE",
		"DATA_API_URL", "RPC_URL", "USER_ADDRESSES", "COPY_STRATEGY", "COPY_SIZE",
		"MAX_ORDER_SIZE_USD", "MIN_ORDER_SIZE_USD", "MAX_POSITION_SIZE_USD", "TRADE_MULTIPLIER",
		"RETRY_LIMIT", "NETWORK_RETRY_LIMIT", "REQUEST_TIMEOUT_MS", "ENABLE_EVASION",
		"RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW_SECONDS", "PROXY_LIST",
		"CIRCUIT_BREAKER_THRESHOLD", "CIRCUIT_BREAKER_PAUSE_MINUTES",
		"STORAGE_DRIVER", "STORAGE_DSN", "STORAGE_ENCRYPTION_KEY",
		"FETCH_INTERVAL_MS", "ENABLE_RTDS", "TOO_OLD_TIMESTAMP", "METRICS_ADDR", "LOG_LEVEL", "LOG_FILE",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFromFile("")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.RetryLimit)
	assert.True(t, cfg.Evasion.Enabled)
	assert.Equal(t, 5, cfg.Evasion.RateLimit)
	assert.Equal(t, time.Minute, cfg.Evasion.Window())
	assert.Equal(t, 3, cfg.CircuitBreaker.Threshold)
	assert.Equal(t, 15, cfg.CircuitBreaker.PauseMinutes)
	assert.Equal(t, time.Second, cfg.Monitor.PollInterval())
	assert.Equal(t, 24*time.Hour, cfg.Monitor.TooOld())
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout())
	assert.Equal(t, sizing.StrategyPercentage, cfg.CopyStrategy.Strategy)
	assert.Same(t, cfg, Get())
}

func TestEnvOverridesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("USER_ADDRESSES", " 0xAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaa, "+testTrader+",0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	t.Setenv("PROXY_LIST", "http://u:p@10.0.0.1:8080#1.2.3.4, 10.0.0.2:3128")
	t.Setenv("RETRY_LIMIT", "5")
	t.Setenv("COPY_STRATEGY", "fixed")
	t.Setenv("COPY_SIZE", "25")
	t.Setenv("ENABLE_EVASION", "false")

	cfg, err := LoadFromFile("")
	require.NoError(t, err)

	assert.Equal(t, []string{"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", testTrader}, cfg.Traders, "地址应去重并转小写")
	assert.Equal(t, []string{"http://u:p@10.0.0.1:8080#1.2.3.4", "10.0.0.2:3128"}, cfg.Evasion.Proxies)
	assert.Equal(t, 5, cfg.RetryLimit)
	assert.Equal(t, sizing.StrategyFixed, cfg.CopyStrategy.Strategy)
	assert.Equal(t, 25.0, cfg.CopyStrategy.CopySize)
	assert.False(t, cfg.Evasion.Enabled)
}

func TestFileOverridesEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("RETRY_LIMIT", "5")
	t.Setenv("METRICS_ADDR", ":7000")

	path := writeFile(t, "config.yaml", `
retry_limit: 7
traders:
  - `+testTrader+`
evasion:
  enabled: false
  proxies:
    - http://10.0.0.9:8000
circuit_breaker:
  threshold: 4
copy_strategy:
  strategy: adaptive
  copy_size: 12
  adaptive_threshold_usd: 300
storage:
  driver: Badger
  dsn: /tmp/copybot-badger
`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.RetryLimit, "文件优先于环境变量")
	assert.Equal(t, ":7000", cfg.MetricsAddr, "文件未写的字段保留环境变量")
	assert.False(t, cfg.Evasion.Enabled)
	assert.Equal(t, 5, cfg.Evasion.RateLimit, "嵌套结构中未写的字段保留默认值")
	assert.Equal(t, []string{"http://10.0.0.9:8000"}, cfg.Evasion.Proxies)
	assert.Equal(t, 4, cfg.CircuitBreaker.Threshold)
	assert.Equal(t, 15, cfg.CircuitBreaker.PauseMinutes)
	assert.Equal(t, sizing.StrategyAdaptive, cfg.CopyStrategy.Strategy)
	assert.Equal(t, 100.0, cfg.CopyStrategy.MaxOrderSizeUSD)
	assert.Equal(t, "badger", cfg.Storage.Driver)
	assert.Equal(t, path, GetConfigPath())
}

func TestJSONFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.json", `{"traders":["`+testTrader+`"],"monitor":{"rtds":false,"poll_interval_ms":500}}`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.False(t, cfg.Monitor.RTDS)
	assert.Equal(t, 500*time.Millisecond, cfg.Monitor.PollInterval())
	assert.Equal(t, 24, cfg.Monitor.TooOldHours)
}

func TestUnsupportedFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.toml", "retry_limit = 1")
	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "不支持的配置文件格式")
}

func validConfig() Config {
	c := Default()
	c.Wallet.PrivateKey = testKey
	c.Wallet.FunderAddress = testFunder
	c.Traders = []string{testTrader}
	return c
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"mnemonic only", func(c *Config) { c.Wallet.PrivateKey = ""; c.Wallet.Mnemonic = "x" }, ""},
		{"no key", func(c *Config) { c.Wallet.PrivateKey = "" }, "PRIVATE_KEY"},
		{"no funder", func(c *Config) { c.Wallet.FunderAddress = "" }, "PROXY_WALLET"},
		{"bad funder", func(c *Config) { c.Wallet.FunderAddress = "0x12" }, "不是有效地址"},
		{"bad signature type", func(c *Config) { c.Wallet.SignatureType = 9 }, "signature_type"},
		{"no traders", func(c *Config) { c.Traders = nil }, "USER_ADDRESSES"},
		{"bad trader", func(c *Config) { c.Traders = []string{"bob"} }, "交易员地址无效"},
		{"bad strategy", func(c *Config) { c.CopyStrategy.Strategy = "MARTINGALE" }, "copy_strategy"},
		{"retry limit", func(c *Config) { c.RetryLimit = 0 }, "RETRY_LIMIT"},
		{"rate limit", func(c *Config) { c.Evasion.RateLimit = 0 }, "rate_limit"},
		{"rate limit ignored without evasion", func(c *Config) { c.Evasion.Enabled = false; c.Evasion.RateLimit = 0 }, ""},
		{"breaker", func(c *Config) { c.CircuitBreaker.PauseMinutes = 0 }, "circuit_breaker"},
		{"storage driver", func(c *Config) { c.Storage.Driver = "mongo" }, "不支持的存储驱动"},
		{"storage dsn", func(c *Config) { c.Storage.DSN = "" }, "storage.dsn"},
		{"memory needs no dsn", func(c *Config) { c.Storage.Driver = "memory"; c.Storage.DSN = "" }, ""},
		{"poll interval", func(c *Config) { c.Monitor.PollIntervalMS = 0 }, "poll_interval_ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResolvePrivateKey(t *testing.T) {
	pk, err := WalletConfig{PrivateKey: testKey}.ResolvePrivateKey()
	require.NoError(t, err)
	assert.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", crypto.PubkeyToAddress(pk.PublicKey).Hex())

	mnemonic := "tag volcano eight thank tide danger coast health above argue embrace heavy"
	pk, err = WalletConfig{Mnemonic: mnemonic}.ResolvePrivateKey()
	require.NoError(t, err)
	assert.Equal(t, "0xC49926C4124cEe1cbA0Ea94Ea31a6c12318df947", crypto.PubkeyToAddress(pk.PublicKey).Hex())

	pk, err = WalletConfig{Mnemonic: mnemonic, DerivationPath: "m/44'/60'/0'/0/1"}.ResolvePrivateKey()
	require.NoError(t, err)
	assert.Equal(t, "0x8230645aC28A4EdD1b0B53E7Cd8019744E9dD559", crypto.PubkeyToAddress(pk.PublicKey).Hex())

	_, err = WalletConfig{PrivateKey: "0xzz"}.ResolvePrivateKey()
	assert.Error(t, err)
	_, err = WalletConfig{}.ResolvePrivateKey()
	assert.Error(t, err)
}

func TestClobCreds(t *testing.T) {
	assert.Nil(t, ClobConfig{APIKey: "k"}.Creds())
	creds := ClobConfig{APIKey: "k", APISecret: "s", APIPassphrase: "p"}.Creds()
	require.NotNil(t, creds)
	assert.Equal(t, "k", creds.Key)
}
