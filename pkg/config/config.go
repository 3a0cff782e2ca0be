package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/betbot/nftmarket/pkg/logger"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "NFTMARKET_"

// DefaultMnemonic 本地开发助记词（与 hardhat 默认账户一致）
const DefaultMnemonic = "test test test test test test test test test test test junk"

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       RateLimit     `yaml:"rate_limit"`
}

// RateLimit 每个调用方（X-Account 或 IP）的令牌桶
type RateLimit struct {
	Capacity        int `yaml:"capacity"` // 0 表示不限流
	RefillPerSecond int `yaml:"refill_per_second"`
}

// FeeConfig 手续费配置，启动后不可变
type FeeConfig struct {
	Percent uint64 `yaml:"percent"`
	Account string `yaml:"account"` // 为空时使用 devnet 的 0 号账户
}

// StoreConfig 挂单存储
type StoreConfig struct {
	Backend       string        `yaml:"backend"` // memory | sqlite | mysql | badger
	Path          string        `yaml:"path"`
	DSN           string        `yaml:"dsn"`
	EncryptionKey string        `yaml:"encryption_key"`
	ReadCacheTTL  time.Duration `yaml:"read_cache_ttl"`
}

// EventsConfig 事件日志
type EventsConfig struct {
	Journal string `yaml:"journal"` // memory | badger
	Path    string `yaml:"path"`
}

// DevnetConfig 本地开发节点
type DevnetConfig struct {
	Mnemonic         string `yaml:"mnemonic"`
	Accounts         int    `yaml:"accounts"`
	InitialBalance   string `yaml:"initial_balance"` // wei 或 "10000eth"
	CollectionName   string `yaml:"collection_name"`
	CollectionSymbol string `yaml:"collection_symbol"`
	ExportDir        string `yaml:"export_dir"`   // 前端地址文件输出目录（可选）
	SnapshotDir      string `yaml:"snapshot_dir"` // 余额/NFT 快照目录（可选）
}

// Config 应用配置
type Config struct {
	Server ServerConfig  `yaml:"server"`
	Log    logger.Config `yaml:"log"`
	Fee    FeeConfig     `yaml:"fee"`
	Store  StoreConfig   `yaml:"store"`
	Events EventsConfig  `yaml:"events"`
	Devnet DevnetConfig  `yaml:"devnet"`
}

// Default 默认配置：内存存储、1% 手续费、10 个开发账户
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       RateLimit{Capacity: 120, RefillPerSecond: 40},
		},
		Log: logger.DefaultConfig(),
		Fee: FeeConfig{Percent: 1},
		Store: StoreConfig{
			Backend:      "memory",
			ReadCacheTTL: 30 * time.Second,
		},
		Events: EventsConfig{Journal: "memory"},
		Devnet: DevnetConfig{
			Mnemonic:       DefaultMnemonic,
			Accounts:       10,
			InitialBalance: "10000eth",
		},
	}
}

// LoadFromFile 默认值 <- 配置文件 <- 环境变量。filePath 为空时跳过文件。
func LoadFromFile(filePath string) (*Config, error) {
	cfg := Default()
	if filePath != "" {
		if err := loadConfigFile(filePath, cfg); err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadConfigFile 支持 YAML 与 JSON（JSON 是 YAML 的子集，同一个解码器即可）
func loadConfigFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".yaml", ".yml", ".json":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析配置文件失败: %w", err)
		}
	default:
		return fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Addr = getEnv("ADDR", cfg.Server.Addr)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.OutputFile = getEnv("LOG_FILE", cfg.Log.OutputFile)
	cfg.Fee.Percent = uint64(parseIntEnv("FEE_PERCENT", int(cfg.Fee.Percent)))
	cfg.Fee.Account = getEnv("FEE_ACCOUNT", cfg.Fee.Account)
	cfg.Store.Backend = getEnv("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Path = getEnv("STORE_PATH", cfg.Store.Path)
	cfg.Store.DSN = getEnv("MYSQL_DSN", cfg.Store.DSN)
	cfg.Store.EncryptionKey = getEnv("BADGER_KEY", cfg.Store.EncryptionKey)
	cfg.Events.Journal = getEnv("EVENTS_JOURNAL", cfg.Events.Journal)
	cfg.Events.Path = getEnv("EVENTS_PATH", cfg.Events.Path)
	cfg.Devnet.Mnemonic = getEnv("MNEMONIC", cfg.Devnet.Mnemonic)
	cfg.Devnet.Accounts = parseIntEnv("ACCOUNTS", cfg.Devnet.Accounts)
	cfg.Devnet.InitialBalance = getEnv("INITIAL_BALANCE", cfg.Devnet.InitialBalance)
	cfg.Devnet.ExportDir = getEnv("EXPORT_DIR", cfg.Devnet.ExportDir)
	cfg.Devnet.SnapshotDir = getEnv("SNAPSHOT_DIR", cfg.Devnet.SnapshotDir)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr 不能为空")
	}
	if c.Fee.Percent > 100 {
		return fmt.Errorf("fee.percent 必须在 0 到 100 之间，当前 %d", c.Fee.Percent)
	}
	if c.Fee.Account != "" {
		if !common.IsHexAddress(c.Fee.Account) {
			return fmt.Errorf("fee.account 不是合法地址: %s", c.Fee.Account)
		}
		if common.HexToAddress(c.Fee.Account) == (common.Address{}) {
			return fmt.Errorf("fee.account 不能是零地址")
		}
	}

	switch strings.ToLower(c.Store.Backend) {
	case "", "memory":
	case "sqlite", "badger":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path 未配置（backend=%s）", c.Store.Backend)
		}
	case "mysql":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn 未配置（backend=mysql）")
		}
	default:
		return fmt.Errorf("未知的存储后端: %s", c.Store.Backend)
	}

	switch strings.ToLower(c.Events.Journal) {
	case "", "memory":
	case "badger":
		// 未配置 path 时与 badger 挂单存储共用实例
		if c.Events.Path == "" && !strings.EqualFold(c.Store.Backend, "badger") {
			return fmt.Errorf("events.path 未配置（journal=badger）")
		}
	default:
		return fmt.Errorf("未知的事件日志类型: %s", c.Events.Journal)
	}

	if c.Devnet.Accounts < 1 {
		return fmt.Errorf("devnet.accounts 至少为 1")
	}
	if strings.TrimSpace(c.Devnet.Mnemonic) == "" {
		return fmt.Errorf("devnet.mnemonic 不能为空")
	}
	if c.Server.RateLimit.Capacity < 0 || c.Server.RateLimit.RefillPerSecond < 0 {
		return fmt.Errorf("server.rate_limit 不能为负数")
	}
	return nil
}

// getEnv 读取 NFTMARKET_<key>，不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量，解析失败返回默认值
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
