package config

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/betbot/copybot/clob/types"
	"github.com/betbot/copybot/internal/sizing"
	"github.com/betbot/copybot/pkg/logger"
)

// DefaultDerivationPath 助记词默认派生路径
const DefaultDerivationPath = "m/44'/60'/0'/0/0"

// WalletConfig 钱包配置。PrivateKey 与 Mnemonic 二选一，PrivateKey 优先。
type WalletConfig struct {
	PrivateKey     string `yaml:"private_key" json:"private_key"`
	Mnemonic       string `yaml:"mnemonic" json:"mnemonic"`
	DerivationPath string `yaml:"derivation_path" json:"derivation_path"`
	// FunderAddress 代理钱包地址（下单 maker / 持仓查询地址）
	FunderAddress string `yaml:"funder_address" json:"funder_address"`
	// SignatureType 0=EOA 1=Magic 2=GnosisSafe
	SignatureType int `yaml:"signature_type" json:"signature_type"`
}

// ClobConfig CLOB 配置
type ClobConfig struct {
	Host          string `yaml:"host" json:"host"`
	ChainID       int64  `yaml:"chain_id" json:"chain_id"`
	APIKey        string `yaml:"api_key" json:"api_key"`
	APISecret     string `yaml:"api_secret" json:"api_secret"`
	APIPassphrase string `yaml:"api_passphrase" json:"api_passphrase"`
}

// EvasionConfig 限流、类人延迟、代理轮换
type EvasionConfig struct {
	Enabled         bool     `yaml:"enabled" json:"enabled"`
	RateLimit       int      `yaml:"rate_limit" json:"rate_limit"`
	WindowSeconds   int      `yaml:"window_seconds" json:"window_seconds"`
	Proxies         []string `yaml:"proxies" json:"proxies"`
	RotationMinutes int      `yaml:"rotation_minutes" json:"rotation_minutes"`
	CooldownMinutes int      `yaml:"cooldown_minutes" json:"cooldown_minutes"`
}

// CircuitBreakerConfig 断路器
type CircuitBreakerConfig struct {
	Threshold    int `yaml:"threshold" json:"threshold"`
	PauseMinutes int `yaml:"pause_minutes" json:"pause_minutes"`
}

// StorageConfig 事件存储
type StorageConfig struct {
	Driver        string `yaml:"driver" json:"driver"` // sqlite | badger | postgres | memory
	DSN           string `yaml:"dsn" json:"dsn"`
	EncryptionKey string `yaml:"encryption_key" json:"encryption_key"`
}

// MonitorConfig 活动监控
type MonitorConfig struct {
	PollIntervalMS int  `yaml:"poll_interval_ms" json:"poll_interval_ms"`
	RTDS           bool `yaml:"rtds" json:"rtds"`
	TooOldHours    int  `yaml:"too_old_hours" json:"too_old_hours"`
}

// Config 完整配置
type Config struct {
	Wallet            WalletConfig          `yaml:"wallet" json:"wallet"`
	Clob              ClobConfig            `yaml:"clob" json:"clob"`
	DataAPI           string                `yaml:"data_api" json:"data_api"`
	RPCURL            string                `yaml:"rpc_url" json:"rpc_url"`
	Traders           []string              `yaml:"traders" json:"traders"`
	CopyStrategy      sizing.StrategyConfig `yaml:"copy_strategy" json:"copy_strategy"`
	RetryLimit        int                   `yaml:"retry_limit" json:"retry_limit"`
	NetworkRetryLimit int                   `yaml:"network_retry_limit" json:"network_retry_limit"`
	RequestTimeoutMS  int                   `yaml:"request_timeout_ms" json:"request_timeout_ms"`
	Evasion           EvasionConfig         `yaml:"evasion" json:"evasion"`
	CircuitBreaker    CircuitBreakerConfig  `yaml:"circuit_breaker" json:"circuit_breaker"`
	Storage           StorageConfig         `yaml:"storage" json:"storage"`
	Monitor           MonitorConfig         `yaml:"monitor" json:"monitor"`
	MetricsAddr       string                `yaml:"metrics_addr" json:"metrics_addr"`
	Log               logger.Config         `yaml:"log" json:"log"`
}

var (
	globalConfig   *Config
	configFilePath string
)

// SetConfigPath 设置配置文件路径
func SetConfigPath(path string) {
	configFilePath = path
}

// GetConfigPath 获取配置文件路径
func GetConfigPath() string {
	return configFilePath
}

// Get 获取全局配置（如果已加载）
func Get() *Config {
	return globalConfig
}

// Default 默认配置
func Default() Config {
	return Config{
		Wallet: WalletConfig{
			DerivationPath: DefaultDerivationPath,
			SignatureType:  int(types.SignatureTypeGnosisSafe),
		},
		Clob: ClobConfig{
			Host:    "https://clob.polymarket.com",
			ChainID: int64(types.ChainPolygon),
		},
		DataAPI:           "https://data-api.polymarket.com",
		RPCURL:            "https://polygon-rpc.com",
		CopyStrategy:      sizing.DefaultStrategyConfig(),
		RetryLimit:        3,
		NetworkRetryLimit: 3,
		RequestTimeoutMS:  10000,
		Evasion: EvasionConfig{
			Enabled:         true,
			RateLimit:       5,
			WindowSeconds:   60,
			RotationMinutes: 15,
			CooldownMinutes: 8,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Threshold:    3,
			PauseMinutes: 15,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			DSN:    "data/copybot.db",
		},
		Monitor: MonitorConfig{
			PollIntervalMS: 1000,
			RTDS:           true,
			TooOldHours:    24,
		},
		MetricsAddr: ":9090",
		Log:         logger.DefaultConfig(),
	}
}

// Load 加载配置
func Load() (*Config, error) {
	return LoadFromFile(configFilePath)
}

// LoadFromFile 优先级：配置文件 > 环境变量（含 .env） > 默认值
func LoadFromFile(filePath string) (*Config, error) {
	// .env 不存在不算错误
	_ = godotenv.Load()

	cfg := Default()
	applyEnv(&cfg)

	if filePath != "" {
		if err := loadConfigFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}
	cfg.normalize()

	globalConfig = &cfg
	configFilePath = filePath
	return &cfg, nil
}

// loadConfigFile 把配置文件解码到 into 上（支持 YAML 和 JSON）。
// 文件中出现的字段覆盖原值，未出现的字段保持不变。
func loadConfigFile(filePath string, into *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, into); err != nil {
			return fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, into); err != nil {
			return fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}
	return nil
}

// applyEnv 用环境变量覆盖默认值
func applyEnv(c *Config) {
	c.Wallet.PrivateKey = getEnv("PRIVATE_KEY", c.Wallet.PrivateKey)
	c.Wallet.Mnemonic = getEnv("MNEMONIC", c.Wallet.Mnemonic)
	c.Wallet.DerivationPath = getEnv("DERIVATION_PATH", c.Wallet.DerivationPath)
	c.Wallet.FunderAddress = getEnv("PROXY_WALLET", c.Wallet.FunderAddress)
	c.Wallet.SignatureType = parseIntEnv("SIGNATURE_TYPE", c.Wallet.SignatureType)

	c.Clob.Host = getEnv("CLOB_HTTP_URL", c.Clob.Host)
	c.Clob.ChainID = int64(parseIntEnv("CHAIN_ID", int(c.Clob.ChainID)))
	c.Clob.APIKey = getEnv("CLOB_API_KEY", c.Clob.APIKey)
	c.Clob.APISecret = getEnv("CLOB_SECRET", c.Clob.APISecret)
	c.Clob.APIPassphrase = getEnv("CLOB_PASS_PHRASE", c.Clob.APIPassphrase)

	c.DataAPI = getEnv("DATA_API_URL", c.DataAPI)
	c.RPCURL = getEnv("RPC_URL", c.RPCURL)
	if v := os.Getenv("USER_ADDRESSES"); v != "" {
		c.Traders = splitList(v)
	}

	s := &c.CopyStrategy
	s.Strategy = sizing.Strategy(getEnv("COPY_STRATEGY", string(s.Strategy)))
	s.CopySize = parseFloatEnv("COPY_SIZE", s.CopySize)
	s.MaxOrderSizeUSD = parseFloatEnv("MAX_ORDER_SIZE_USD", s.MaxOrderSizeUSD)
	s.MinOrderSizeUSD = parseFloatEnv("MIN_ORDER_SIZE_USD", s.MinOrderSizeUSD)
	s.MaxPositionSizeUSD = parseFloatEnv("MAX_POSITION_SIZE_USD", s.MaxPositionSizeUSD)
	s.TradeMultiplier = parseFloatEnv("TRADE_MULTIPLIER", s.TradeMultiplier)

	c.RetryLimit = parseIntEnv("RETRY_LIMIT", c.RetryLimit)
	c.NetworkRetryLimit = parseIntEnv("NETWORK_RETRY_LIMIT", c.NetworkRetryLimit)
	c.RequestTimeoutMS = parseIntEnv("REQUEST_TIMEOUT_MS", c.RequestTimeoutMS)

	c.Evasion.Enabled = parseBoolEnv("ENABLE_EVASION", c.Evasion.Enabled)
	c.Evasion.RateLimit = parseIntEnv("RATE_LIMIT_REQUESTS", c.Evasion.RateLimit)
	c.Evasion.WindowSeconds = parseIntEnv("RATE_LIMIT_WINDOW_SECONDS", c.Evasion.WindowSeconds)
	if v := os.Getenv("PROXY_LIST"); v != "" {
		c.Evasion.Proxies = splitList(v)
	}

	c.CircuitBreaker.Threshold = parseIntEnv("CIRCUIT_BREAKER_THRESHOLD", c.CircuitBreaker.Threshold)
	c.CircuitBreaker.PauseMinutes = parseIntEnv("CIRCUIT_BREAKER_PAUSE_MINUTES", c.CircuitBreaker.PauseMinutes)

	c.Storage.Driver = getEnv("STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.DSN = getEnv("STORAGE_DSN", c.Storage.DSN)
	c.Storage.EncryptionKey = getEnv("STORAGE_ENCRYPTION_KEY", c.Storage.EncryptionKey)

	c.Monitor.PollIntervalMS = parseIntEnv("FETCH_INTERVAL_MS", c.Monitor.PollIntervalMS)
	c.Monitor.RTDS = parseBoolEnv("ENABLE_RTDS", c.Monitor.RTDS)
	c.Monitor.TooOldHours = parseIntEnv("TOO_OLD_TIMESTAMP", c.Monitor.TooOldHours)

	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.OutputFile = getEnv("LOG_FILE", c.Log.OutputFile)
}

// normalize 统一地址大小写、去空白
func (c *Config) normalize() {
	traders := make([]string, 0, len(c.Traders))
	seen := make(map[string]bool, len(c.Traders))
	for _, t := range c.Traders {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		traders = append(traders, t)
	}
	c.Traders = traders
	c.Evasion.Proxies = splitList(strings.Join(c.Evasion.Proxies, ","))
	c.CopyStrategy.Strategy = sizing.Strategy(strings.ToUpper(string(c.CopyStrategy.Strategy)))
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Wallet.PrivateKey = strings.TrimSpace(c.Wallet.PrivateKey)
	c.Wallet.FunderAddress = strings.TrimSpace(c.Wallet.FunderAddress)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Wallet.PrivateKey == "" && c.Wallet.Mnemonic == "" {
		return fmt.Errorf("PRIVATE_KEY 或 MNEMONIC 至少配置一个")
	}
	if c.Wallet.FunderAddress == "" {
		return fmt.Errorf("PROXY_WALLET 未配置")
	}
	if !common.IsHexAddress(c.Wallet.FunderAddress) {
		return fmt.Errorf("PROXY_WALLET 不是有效地址: %s", c.Wallet.FunderAddress)
	}
	switch types.SignatureType(c.Wallet.SignatureType) {
	case types.SignatureTypeEOA, types.SignatureTypeMagic, types.SignatureTypeGnosisSafe:
	default:
		return fmt.Errorf("signature_type 必须是 0/1/2，当前 %d", c.Wallet.SignatureType)
	}
	if len(c.Traders) == 0 {
		return fmt.Errorf("USER_ADDRESSES 至少需要一个交易员地址")
	}
	for _, t := range c.Traders {
		if !common.IsHexAddress(t) {
			return fmt.Errorf("交易员地址无效: %s", t)
		}
	}
	if err := c.CopyStrategy.Validate(); err != nil {
		return errors.Wrap(err, "copy_strategy")
	}
	if c.RetryLimit <= 0 {
		return fmt.Errorf("RETRY_LIMIT 必须大于 0")
	}
	if c.NetworkRetryLimit <= 0 {
		return fmt.Errorf("NETWORK_RETRY_LIMIT 必须大于 0")
	}
	if c.RequestTimeoutMS <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_MS 必须大于 0")
	}
	if c.Evasion.Enabled && (c.Evasion.RateLimit <= 0 || c.Evasion.WindowSeconds <= 0) {
		return fmt.Errorf("rate_limit 与 window_seconds 必须大于 0")
	}
	if c.CircuitBreaker.Threshold <= 0 || c.CircuitBreaker.PauseMinutes <= 0 {
		return fmt.Errorf("circuit_breaker 的 threshold 与 pause_minutes 必须大于 0")
	}
	switch c.Storage.Driver {
	case "sqlite", "badger", "postgres", "memory":
	default:
		return fmt.Errorf("不支持的存储驱动: %s", c.Storage.Driver)
	}
	if c.Storage.Driver != "memory" && c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn 不能为空")
	}
	if c.Monitor.PollIntervalMS <= 0 {
		return fmt.Errorf("monitor.poll_interval_ms 必须大于 0")
	}
	return nil
}

// ResolvePrivateKey 解析签名私钥：优先 private_key，否则从助记词派生
func (w WalletConfig) ResolvePrivateKey() (*ecdsa.PrivateKey, error) {
	if w.PrivateKey != "" {
		pk, err := crypto.HexToECDSA(strings.TrimPrefix(w.PrivateKey, "0x"))
		if err != nil {
			return nil, errors.Wrap(err, "解析私钥失败")
		}
		return pk, nil
	}
	mnemonic := strings.TrimSpace(w.Mnemonic)
	if mnemonic == "" {
		return nil, fmt.Errorf("未配置私钥或助记词")
	}
	path := strings.TrimSpace(w.DerivationPath)
	if path == "" {
		path = DefaultDerivationPath
	}

	wallet, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, errors.Wrap(err, "助记词无效")
	}
	dp, err := hdwallet.ParseDerivationPath(path)
	if err != nil {
		return nil, errors.Wrapf(err, "派生路径无效 %s", path)
	}
	acct, err := wallet.Derive(dp, false)
	if err != nil {
		return nil, errors.Wrap(err, "派生账户失败")
	}
	return wallet.PrivateKey(acct)
}

// Creds 配置中的 API 凭证，不完整时返回 nil
func (c ClobConfig) Creds() *types.ApiKeyCreds {
	creds := &types.ApiKeyCreds{Key: c.APIKey, Secret: c.APISecret, Passphrase: c.APIPassphrase}
	if !creds.Valid() {
		return nil
	}
	return creds
}

// RequestTimeout 请求超时
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// PollInterval 轮询间隔
func (m MonitorConfig) PollInterval() time.Duration {
	return time.Duration(m.PollIntervalMS) * time.Millisecond
}

// TooOld 过旧事件阈值
func (m MonitorConfig) TooOld() time.Duration {
	return time.Duration(m.TooOldHours) * time.Hour
}

// Window 限流窗口
func (e EvasionConfig) Window() time.Duration {
	return time.Duration(e.WindowSeconds) * time.Second
}

// splitList 逗号/换行分隔，去空白
func splitList(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '\n' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseFloatEnv 解析浮点数环境变量
func parseFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseBoolEnv 解析布尔环境变量
func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
