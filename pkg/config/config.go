package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/betbot/perpsession/pkg/logger"
)

// 交易所接入模式
const (
	ModeGateway = "gateway" // 通过清算所网关（REST + WS）真实交易
	ModePaper   = "paper"   // 本地纸交易清算所（AMM 模拟）
)

// ClusterDefaults 集群默认地址：RPC、清算所程序、USDC mint
type ClusterDefaults struct {
	RPCURL    string
	ProgramID string
	USDCMint  string
}

// Clusters 已知集群
var Clusters = map[string]ClusterDefaults{
	"devnet": {
		RPCURL:    "https://api.devnet.solana.com",
		ProgramID: "AsW7LnXB9UA1uec9wi9MctYTgTz7YH9snhxd16GsFaGX",
		USDCMint:  "8zGuJQqwhZafTah7Uc7Z4tXRnguqkn5KLFAP8oV6PHe2",
	},
	"mainnet-beta": {
		RPCURL:    "https://api.mainnet-beta.solana.com",
		ProgramID: "dammHkt7jmytvbS3nHTxQNEcP59aE57nxwV21YdqEDN",
		USDCMint:  "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	},
}

// NetworkConfig 链网络配置
type NetworkConfig struct {
	Env    string // devnet / mainnet-beta
	RPCURL string
}

// ExchangeConfig 清算所接入配置
type ExchangeConfig struct {
	Mode              string
	ProgramID         string
	GatewayURL        string
	WSURL             string
	RequestsPerSecond int           // 网关请求限速（每秒）
	HTTPTimeout       time.Duration // 单次 HTTP 请求超时
}

// WalletConfig 钱包配置（签名凭证的来源，按优先级：PrivateKey > KeygenFile > SecretDB）
type WalletConfig struct {
	PrivateKey string // JSON 字节数组或 base58
	KeygenFile string // solana-keygen 生成的 JSON 文件
	SecretDB   string // badger 加密存储目录
	SecretKey  string // badger 加密密钥（32 字节 hex/base64）
	SecretName string // 存储内的键名
}

// MarketConfig 目标市场
type MarketConfig struct {
	Symbol string
}

// SessionConfig 脚本化会话参数（金额单位：报价币种整数，例如 USDC）
type SessionConfig struct {
	CollateralMint        string
	DepositAmount         int64
	SlippageProbeNotional int64
	OpenNotional          int64
	ReduceNotional        int64
	MaxSlippagePct        float64 // 0 表示滑点只做展示，不拦截
	StepTimeout           time.Duration
}

// PaperConfig 纸交易清算所配置
type PaperConfig struct {
	StateDir       string // 为空则只在内存中
	FundingBalance int64  // 资金账户初始 USDC 余额
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string
	Format     string // text / json
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	PushgatewayURL string
	Job            string
	ListenAddr     string // 非空则在运行期间暴露 /metrics 与 /debug/pprof
}

// Config 应用配置（显式传入各组件，不做全局缓存）
type Config struct {
	Network  NetworkConfig
	Exchange ExchangeConfig
	Wallet   WalletConfig
	Market   MarketConfig
	Session  SessionConfig
	Paper    PaperConfig
	Log      LogConfig
	Metrics  MetricsConfig
}

// ConfigFile 配置文件结构（用于 YAML/JSON 解析）
type ConfigFile struct {
	Network struct {
		Env    string `yaml:"env" json:"env"`
		RPCURL string `yaml:"rpc_url" json:"rpc_url"`
	} `yaml:"network" json:"network"`
	Exchange struct {
		Mode              string `yaml:"mode" json:"mode"`
		ProgramID         string `yaml:"program_id" json:"program_id"`
		GatewayURL        string `yaml:"gateway_url" json:"gateway_url"`
		WSURL             string `yaml:"ws_url" json:"ws_url"`
		RequestsPerSecond int    `yaml:"requests_per_second" json:"requests_per_second"`
		HTTPTimeout       string `yaml:"http_timeout" json:"http_timeout"`
	} `yaml:"exchange" json:"exchange"`
	Wallet struct {
		KeygenFile string `yaml:"keygen_file" json:"keygen_file"`
		SecretDB   string `yaml:"secret_db" json:"secret_db"`
		SecretName string `yaml:"secret_name" json:"secret_name"`
	} `yaml:"wallet" json:"wallet"`
	Market struct {
		Symbol string `yaml:"symbol" json:"symbol"`
	} `yaml:"market" json:"market"`
	Session struct {
		CollateralMint        string  `yaml:"collateral_mint" json:"collateral_mint"`
		DepositAmount         int64   `yaml:"deposit_amount" json:"deposit_amount"`
		SlippageProbeNotional int64   `yaml:"slippage_probe_notional" json:"slippage_probe_notional"`
		OpenNotional          int64   `yaml:"open_notional" json:"open_notional"`
		ReduceNotional        int64   `yaml:"reduce_notional" json:"reduce_notional"`
		MaxSlippagePct        float64 `yaml:"max_slippage_pct" json:"max_slippage_pct"`
		StepTimeout           string  `yaml:"step_timeout" json:"step_timeout"`
	} `yaml:"session" json:"session"`
	Paper struct {
		StateDir       string `yaml:"state_dir" json:"state_dir"`
		FundingBalance int64  `yaml:"funding_balance" json:"funding_balance"`
	} `yaml:"paper" json:"paper"`
	Log struct {
		Level      string `yaml:"level" json:"level"`
		Format     string `yaml:"format" json:"format"`
		File       string `yaml:"file" json:"file"`
		MaxSize    int    `yaml:"max_size" json:"max_size"`
		MaxBackups int    `yaml:"max_backups" json:"max_backups"`
		MaxAge     int    `yaml:"max_age" json:"max_age"`
		Compress   bool   `yaml:"compress" json:"compress"`
	} `yaml:"log" json:"log"`
	Metrics struct {
		PushgatewayURL string `yaml:"pushgateway_url" json:"pushgateway_url"`
		Job            string `yaml:"job" json:"job"`
		ListenAddr     string `yaml:"listen_addr" json:"listen_addr"`
	} `yaml:"metrics" json:"metrics"`
}

// LoadEnvFile 加载 .env（不覆盖已存在的环境变量）；文件不存在不算错误
func LoadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("加载 %s 失败: %w", path, err)
	}
	return nil
}

// Load 加载配置（优先级：环境变量 > 配置文件 > 默认值）
func Load(filePath string) (*Config, error) {
	cf := &ConfigFile{}
	if strings.TrimSpace(filePath) != "" {
		loaded, err := loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
		cf = loaded
	}

	cfg, err := build(cf)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return cfg, nil
}

func build(cf *ConfigFile) (*Config, error) {
	env := getEnv("CLUSTER_ENV", firstNonEmpty(cf.Network.Env, "devnet"))
	defaults, ok := Clusters[env]
	if !ok {
		return nil, fmt.Errorf("未知的集群: %s（支持 devnet, mainnet-beta）", env)
	}

	httpTimeout, err := parseDuration("exchange.http_timeout", getEnv("GATEWAY_HTTP_TIMEOUT", cf.Exchange.HTTPTimeout), 30*time.Second)
	if err != nil {
		return nil, err
	}
	stepTimeout, err := parseDuration("session.step_timeout", getEnv("STEP_TIMEOUT", cf.Session.StepTimeout), 60*time.Second)
	if err != nil {
		return nil, err
	}

	rps, err := parseIntEnv("GATEWAY_RPS", intOr(cf.Exchange.RequestsPerSecond, 5))
	if err != nil {
		return nil, err
	}
	deposit, err := parseInt64Env("DEPOSIT_AMOUNT", int64Or(cf.Session.DepositAmount, 10000))
	if err != nil {
		return nil, err
	}
	probe, err := parseInt64Env("SLIPPAGE_PROBE_NOTIONAL", int64Or(cf.Session.SlippageProbeNotional, 5000))
	if err != nil {
		return nil, err
	}
	openNotional, err := parseInt64Env("OPEN_NOTIONAL", int64Or(cf.Session.OpenNotional, 5000))
	if err != nil {
		return nil, err
	}
	reduceNotional, err := parseInt64Env("REDUCE_NOTIONAL", int64Or(cf.Session.ReduceNotional, 2000))
	if err != nil {
		return nil, err
	}
	maxSlippage, err := parseFloatEnv("MAX_SLIPPAGE_PCT", cf.Session.MaxSlippagePct)
	if err != nil {
		return nil, err
	}
	fundingBalance, err := parseInt64Env("PAPER_FUNDING_BALANCE", int64Or(cf.Paper.FundingBalance, 100000))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Network: NetworkConfig{
			Env:    env,
			RPCURL: getEnv("RPC_URL", firstNonEmpty(cf.Network.RPCURL, defaults.RPCURL)),
		},
		Exchange: ExchangeConfig{
			Mode:              strings.ToLower(getEnv("EXCHANGE_MODE", firstNonEmpty(cf.Exchange.Mode, ModePaper))),
			ProgramID:         getEnv("PROGRAM_ID", firstNonEmpty(cf.Exchange.ProgramID, defaults.ProgramID)),
			GatewayURL:        getEnv("GATEWAY_URL", cf.Exchange.GatewayURL),
			WSURL:             getEnv("GATEWAY_WS_URL", cf.Exchange.WSURL),
			RequestsPerSecond: rps,
			HTTPTimeout:       httpTimeout,
		},
		Wallet: WalletConfig{
			PrivateKey: getEnv("BOT_PRIVATE_KEY", ""),
			KeygenFile: getEnv("KEYGEN_FILE", cf.Wallet.KeygenFile),
			SecretDB:   getEnv("SECRET_DB", cf.Wallet.SecretDB),
			SecretKey:  getEnv("SECRET_KEY", ""),
			SecretName: getEnv("SECRET_NAME", firstNonEmpty(cf.Wallet.SecretName, "env/BOT_PRIVATE_KEY")),
		},
		Market: MarketConfig{
			Symbol: strings.ToUpper(getEnv("MARKET_SYMBOL", firstNonEmpty(cf.Market.Symbol, "SOL"))),
		},
		Session: SessionConfig{
			CollateralMint:        getEnv("COLLATERAL_MINT", firstNonEmpty(cf.Session.CollateralMint, defaults.USDCMint)),
			DepositAmount:         deposit,
			SlippageProbeNotional: probe,
			OpenNotional:          openNotional,
			ReduceNotional:        reduceNotional,
			MaxSlippagePct:        maxSlippage,
			StepTimeout:           stepTimeout,
		},
		Paper: PaperConfig{
			StateDir:       getEnv("PAPER_STATE_DIR", cf.Paper.StateDir),
			FundingBalance: fundingBalance,
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", firstNonEmpty(cf.Log.Level, "info")),
			Format:     getEnv("LOG_FORMAT", firstNonEmpty(cf.Log.Format, "text")),
			File:       getEnv("LOG_FILE", cf.Log.File),
			MaxSize:    intOr(cf.Log.MaxSize, 100),
			MaxBackups: intOr(cf.Log.MaxBackups, 3),
			MaxAge:     intOr(cf.Log.MaxAge, 7),
			Compress:   cf.Log.Compress,
		},
		Metrics: MetricsConfig{
			PushgatewayURL: getEnv("PUSHGATEWAY_URL", cf.Metrics.PushgatewayURL),
			Job:            getEnv("METRICS_JOB", firstNonEmpty(cf.Metrics.Job, "perpsession")),
			ListenAddr:     getEnv("METRICS_ADDR", cf.Metrics.ListenAddr),
		},
	}
	return cfg, nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cf ConfigFile
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", filepath.Ext(filePath))
	}
	return &cf, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch c.Exchange.Mode {
	case ModePaper:
	case ModeGateway:
		if c.Exchange.GatewayURL == "" {
			return fmt.Errorf("gateway 模式下 GATEWAY_URL 未配置")
		}
	default:
		return fmt.Errorf("未知的 exchange.mode: %s（支持 gateway, paper）", c.Exchange.Mode)
	}
	if c.Wallet.PrivateKey == "" && c.Wallet.KeygenFile == "" && c.Wallet.SecretDB == "" {
		return fmt.Errorf("钱包未配置：需要 BOT_PRIVATE_KEY、wallet.keygen_file 或 wallet.secret_db 之一")
	}
	if c.Wallet.SecretDB != "" && c.Wallet.SecretKey == "" && c.Wallet.PrivateKey == "" && c.Wallet.KeygenFile == "" {
		return fmt.Errorf("使用 wallet.secret_db 时必须设置 SECRET_KEY")
	}
	if c.Market.Symbol == "" {
		return fmt.Errorf("market.symbol 不能为空")
	}
	s := c.Session
	if s.DepositAmount <= 0 {
		return fmt.Errorf("session.deposit_amount 必须大于 0")
	}
	if s.SlippageProbeNotional <= 0 {
		return fmt.Errorf("session.slippage_probe_notional 必须大于 0")
	}
	if s.OpenNotional <= 0 || s.ReduceNotional <= 0 {
		return fmt.Errorf("session.open_notional 与 session.reduce_notional 必须大于 0")
	}
	if s.ReduceNotional >= s.OpenNotional {
		return fmt.Errorf("session.reduce_notional (%d) 必须小于 session.open_notional (%d)", s.ReduceNotional, s.OpenNotional)
	}
	if s.MaxSlippagePct < 0 {
		return fmt.Errorf("session.max_slippage_pct 不能为负数")
	}
	if s.StepTimeout <= 0 {
		return fmt.Errorf("session.step_timeout 必须大于 0")
	}
	if s.CollateralMint == "" {
		return fmt.Errorf("session.collateral_mint 不能为空")
	}
	return nil
}

// LoggerConfig 转换为 logger 包的配置
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		OutputFile: c.Log.File,
		MaxSize:    c.Log.MaxSize,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAge,
		Compress:   c.Log.Compress,
	}
}

func parseDuration(name, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s 格式无效 %q: %w", name, raw, err)
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func intOr(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func int64Or(v, def int64) int64 {
	if v != 0 {
		return v
	}
	return def
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量；未设置返回默认值，设置了但无法解析返回错误
func parseIntEnv(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s 格式无效 %q: %w", key, value, err)
	}
	return parsed, nil
}

func parseInt64Env(key string, defaultValue int64) (int64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s 格式无效 %q: %w", key, value, err)
	}
	return parsed, nil
}

// parseFloatEnv 解析浮点数环境变量
func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s 格式无效 %q: %w", key, value, err)
	}
	return parsed, nil
}
