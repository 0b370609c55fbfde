package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 订单簿费用默认值
const (
	DefaultFeeRecipient = "0xf3d63166f0ca56c3c1a3508fce03ff0cf3fb691e"
	DefaultFeeBps       = 50
	DefaultOrderbook    = "reservoir"
	DefaultIndexerURL   = "http://127.0.0.1:3000"
)

// defaultRPCURLs 未设置 RPC_URL 时按链 id 选择
var defaultRPCURLs = map[int64]string{
	1:          "https://rpc.mevblocker.io",
	10:         "https://mainnet.optimism.io/",
	56:         "https://bsc-dataseed1.bnbchain.org",
	137:        "https://rpc-mainnet.matic.quiknode.pro",
	204:        "https://opbnb-mainnet-rpc.bnbchain.org",
	324:        "https://mainnet.era.zksync.io",
	1101:       "https://zkevm-rpc.com",
	8453:       "https://developer-access-mainnet.base.org",
	42161:      "https://arb1.arbitrum.io/rpc",
	42170:      "https://arbitrum-nova.publicnode.com",
	43114:      "https://avalanche-c-chain.publicnode.com",
	59144:      "https://rpc.linea.build",
	81457:      "https://blast.blockpi.network/v1/rpc/public",
	534352:     "https://rpc.scroll.io",
	7777777:    "https://rpc.zora.co",
	80002:      "https://rpc-amoy.polygon.technology",
	84532:      "https://sepolia.base.org",
	11155111:   "https://1rpc.io/sepolia",
	168587773:  "https://sepolia.blast.io",
	666666666:  "https://rpc.degen.tips",
	888888888:  "https://rpc.ancient8.gg/",
	1482601649: "https://mainnet.skalenodes.com/v1/green-giddy-denebola",
}

// DefaultRPCURL 已知链的公共节点，未知链返回空串
func DefaultRPCURL(chainID int64) string {
	return defaultRPCURLs[chainID]
}

// WalletConfig 签名账户
type WalletConfig struct {
	PrivateKey     string `yaml:"private_key" json:"private_key"`
	Mnemonic       string `yaml:"mnemonic" json:"mnemonic"`
	DerivationPath string `yaml:"derivation_path" json:"derivation_path"`
	SecretDB       string `yaml:"secret_db" json:"secret_db"`     // Badger 目录
	SecretKey      string `yaml:"secret_key" json:"secret_key"`   // 32 字节 hex/base64
	SignerName     string `yaml:"signer_name" json:"signer_name"` // 库中的账户名
}

// OrderbookConfig 自有订单簿的默认费用
type OrderbookConfig struct {
	Name         string `yaml:"name" json:"name"`
	FeeRecipient string `yaml:"fee_recipient" json:"fee_recipient"`
	FeeBps       uint32 `yaml:"fee_bps" json:"fee_bps"`
}

// ExchangeConfig 单个协议的合约地址
type ExchangeConfig struct {
	Exchange          string `yaml:"exchange" json:"exchange"`
	Module            string `yaml:"module" json:"module"`
	Operator          string `yaml:"operator" json:"operator"`
	ConduitController string `yaml:"conduit_controller" json:"conduit_controller"`
	ConduitKey        string `yaml:"conduit_key" json:"conduit_key"`
	Zone              string `yaml:"zone" json:"zone"`
	Cosigner          string `yaml:"cosigner" json:"cosigner"`
}

// LogConfig 日志
type LogConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// Config 运行配置；优先级：环境变量 > 配置文件 > 默认值
type Config struct {
	ChainID         int64                     `yaml:"chain_id" json:"chain_id"`
	RPCURL          string                    `yaml:"rpc_url" json:"rpc_url"`
	IndexerURL      string                    `yaml:"indexer_url" json:"indexer_url"`
	HTTPTimeoutSec  int                       `yaml:"http_timeout_sec" json:"http_timeout_sec"`
	Wallet          WalletConfig              `yaml:"wallet" json:"wallet"`
	Orderbook       OrderbookConfig           `yaml:"orderbook" json:"orderbook"`
	Router          string                    `yaml:"router" json:"router"`
	Forwarders      []string                  `yaml:"forwarders" json:"forwarders"` // 可信通道转发合约
	Exchanges       map[string]ExchangeConfig `yaml:"exchanges" json:"exchanges"`   // key 为 order kind
	DeploymentsFile string                    `yaml:"deployments_file" json:"deployments_file"`
	JournalDB       string                    `yaml:"journal_db" json:"journal_db"`
	Log             LogConfig                 `yaml:"log" json:"log"`
	DryRun          bool                      `yaml:"dry_run" json:"dry_run"` // 使用内存模拟链，不发真实交易
}

// Load 依次读取配置文件（可为空）、.env、环境变量，再补默认值
func Load(filePath string) (*Config, error) {
	cfg := &Config{}
	if filePath != "" {
		if err := loadConfigFile(filePath, cfg); err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}
	// .env 不存在不是错误
	_ = godotenv.Load()

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.ChainID = parseInt64Env("CHAIN_ID", cfg.ChainID)
	cfg.RPCURL = getEnv("RPC_URL", cfg.RPCURL)
	cfg.IndexerURL = getEnv("INDEXER_URL", cfg.IndexerURL)
	cfg.Wallet.PrivateKey = getEnv("PRIVATE_KEY", cfg.Wallet.PrivateKey)
	cfg.Wallet.Mnemonic = getEnv("MNEMONIC", cfg.Wallet.Mnemonic)
	cfg.Wallet.DerivationPath = getEnv("DERIVATION_PATH", cfg.Wallet.DerivationPath)
	cfg.Wallet.SecretDB = getEnv("SECRET_DB", cfg.Wallet.SecretDB)
	cfg.Wallet.SecretKey = getEnv("SECRET_KEY", cfg.Wallet.SecretKey)
	cfg.Wallet.SignerName = getEnv("SIGNER_NAME", cfg.Wallet.SignerName)
	cfg.Orderbook.FeeRecipient = getEnv("ORDERBOOK_FEE_RECIPIENT", cfg.Orderbook.FeeRecipient)
	cfg.Orderbook.FeeBps = uint32(parseInt64Env("ORDERBOOK_FEE_BPS", int64(cfg.Orderbook.FeeBps)))
	cfg.DeploymentsFile = getEnv("DEPLOYMENTS_FILE", cfg.DeploymentsFile)
	cfg.JournalDB = getEnv("JOURNAL_DB", cfg.JournalDB)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	cfg.DryRun = parseBoolEnv("DRY_RUN", cfg.DryRun)
}

func applyDefaults(cfg *Config) {
	if cfg.ChainID == 0 {
		cfg.ChainID = 1
	}
	if cfg.RPCURL == "" {
		cfg.RPCURL = DefaultRPCURL(cfg.ChainID)
	}
	if cfg.IndexerURL == "" {
		cfg.IndexerURL = DefaultIndexerURL
	}
	if cfg.HTTPTimeoutSec <= 0 {
		cfg.HTTPTimeoutSec = 30
	}
	if cfg.Orderbook.Name == "" {
		cfg.Orderbook.Name = DefaultOrderbook
	}
	if cfg.Orderbook.FeeRecipient == "" {
		cfg.Orderbook.FeeRecipient = DefaultFeeRecipient
		if cfg.Orderbook.FeeBps == 0 {
			cfg.Orderbook.FeeBps = DefaultFeeBps
		}
	}
	if cfg.DeploymentsFile == "" {
		cfg.DeploymentsFile = "deployments.json"
	}
	if cfg.JournalDB == "" {
		cfg.JournalDB = "data/journal.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.MaxSize == 0 {
		cfg.Log.MaxSize = 100 // 100MB
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 3
	}
	if cfg.Log.MaxAge == 0 {
		cfg.Log.MaxAge = 7 // 7天
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL 未配置（链 %d 没有默认节点）", c.ChainID)
	}
	if c.IndexerURL == "" {
		return fmt.Errorf("INDEXER_URL 未配置")
	}
	if c.Orderbook.FeeBps > 10000 {
		return fmt.Errorf("ORDERBOOK_FEE_BPS 不能超过 10000: %d", c.Orderbook.FeeBps)
	}
	if !common.IsHexAddress(c.Orderbook.FeeRecipient) {
		return fmt.Errorf("ORDERBOOK_FEE_RECIPIENT 地址无效: %s", c.Orderbook.FeeRecipient)
	}
	if c.Router != "" && !common.IsHexAddress(c.Router) {
		return fmt.Errorf("router 地址无效: %s", c.Router)
	}
	for _, f := range c.Forwarders {
		if !common.IsHexAddress(f) {
			return fmt.Errorf("forwarder 地址无效: %s", f)
		}
	}
	for _, kind := range c.ExchangeKinds() {
		ex := c.Exchanges[kind]
		for field, v := range map[string]string{
			"exchange":           ex.Exchange,
			"module":             ex.Module,
			"operator":           ex.Operator,
			"conduit_controller": ex.ConduitController,
			"zone":               ex.Zone,
			"cosigner":           ex.Cosigner,
		} {
			if v != "" && !common.IsHexAddress(v) {
				return fmt.Errorf("exchanges.%s.%s 地址无效: %s", kind, field, v)
			}
		}
		if ex.ConduitKey != "" && len(strings.TrimPrefix(ex.ConduitKey, "0x")) != 64 {
			return fmt.Errorf("exchanges.%s.conduit_key 必须是 32 字节: %s", kind, ex.ConduitKey)
		}
	}
	return nil
}

// ExchangeKinds 已配置的协议，按名称排序
func (c *Config) ExchangeKinds() []string {
	kinds := make([]string, 0, len(c.Exchanges))
	for k := range c.Exchanges {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Address 空串返回零地址
func Address(s string) common.Address {
	if s == "" {
		return common.Address{}
	}
	return common.HexToAddress(s)
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseInt64Env 解析整数环境变量，无法解析时返回默认值
func parseInt64Env(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
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
