package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	DB      DBConfig      `mapstructure:"db"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Chain   ChainConfig   `mapstructure:"chain"`
	Sponsor SponsorConfig `mapstructure:"sponsor"`
	Monitor MonitorConfig `mapstructure:"monitor"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MQType   string `mapstructure:"mq_type"` // "redis" or "kafka"
}

type KafkaConfig struct {
	Brokers    []string `mapstructure:"brokers"`
	AlertTopic string   `mapstructure:"alert_topic"`
}

// ChainConfig TRON 全节点与合约地址配置
type ChainConfig struct {
	NodeURL      string        `mapstructure:"node_url"`      // 全节点 HTTP API, e.g. https://api.trongrid.io
	APIKey       string        `mapstructure:"api_key"`       // TronGrid API Key (可选)
	USDTContract string        `mapstructure:"usdt_contract"` // TRC20 USDT 合约地址
	Timeout      time.Duration `mapstructure:"timeout"`       // 单次 HTTP 请求超时
	// 赞助账户签名私钥 (hex)。只应在私有节点部署里通过环境变量
	// CHAIN_PRIVATE_KEY 注入；生产建议换成独立签名服务
	PrivateKey string `mapstructure:"private_key"`
}

// SponsorConfig 赞助账户与资源定价配置
// 注意: 这些都是外部给定的运营参数，不是协议常量
type SponsorConfig struct {
	Address         string `mapstructure:"address"`           // 赞助账户 (Base58)
	TreasuryAddress string `mapstructure:"treasury_address"`  // 归集目标地址
	ActivationSun   int64  `mapstructure:"activation_sun"`    // 激活新账户的 TRX 转账金额 (sun)
	EnergyPerTx     int64  `mapstructure:"energy_per_tx"`     // 一笔 USDT 转账消耗的能量
	BandwidthPerTx  int64  `mapstructure:"bandwidth_per_tx"`  // 一笔交易消耗的带宽
	DailyTxEstimate int64  `mapstructure:"daily_tx_estimate"` // 每个地址每天预估交易笔数
	DefaultDays     int    `mapstructure:"default_days"`      // 默认代理时长 (天)
	MinDelegateSun  int64  `mapstructure:"min_delegate_sun"`  // 单笔代理的质押下限 (sun)
	EnergyPerSun    string `mapstructure:"energy_per_sun"`    // 1 sun 质押可得能量 (估算, decimal 字符串)
	BandwidthPerSun string `mapstructure:"bandwidth_per_sun"` // 1 sun 质押可得带宽 (估算, decimal 字符串)
}

// MonitorConfig 支付监控与确认轮询配置
type MonitorConfig struct {
	ScanInterval      time.Duration `mapstructure:"scan_interval"`      // 扫描 pending 请求的周期
	ConfirmAttempts   int           `mapstructure:"confirm_attempts"`   // 回执轮询次数上限
	ConfirmDelay      time.Duration `mapstructure:"confirm_delay"`      // 回执轮询间隔
	PendingTTL        time.Duration `mapstructure:"pending_ttl"`        // pending 超过该时长标记 expired
	ActivatingTimeout time.Duration `mapstructure:"activating_timeout"` // activating 卡住多久后回退 pending
	MaxSponsorRetries int           `mapstructure:"max_sponsor_retries"`
	ScanBatchSize     int           `mapstructure:"scan_batch_size"`
}

var Global Config

func Init() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// 环境变量设置
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Warning: Config file not found, using defaults and environment variables")
		} else {
			log.Fatalf("Fatal error config file: %s \n", err)
		}
	}

	if err := viper.Unmarshal(&Global); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

func setDefaults() {
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.http_port", "8080")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.user", "sponsor_user")
	viper.SetDefault("db.password", "sponsor_password")
	viper.SetDefault("db.name", "sponsor_db")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.mq_type", "redis")

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.alert_topic", "sponsor_alerts")

	viper.SetDefault("chain.node_url", "https://api.trongrid.io")
	viper.SetDefault("chain.timeout", 10*time.Second)
	// Nile 测试网 USDT; 主网请在配置文件覆盖
	viper.SetDefault("chain.usdt_contract", "TXLAQ63Xg1NAzckPwKHvzw7CSEmLMEqcdj")

	viper.SetDefault("sponsor.activation_sun", int64(1_000_000)) // 1 TRX
	viper.SetDefault("sponsor.energy_per_tx", int64(31_895))     // 收款方 USDT 余额为零时的最坏消耗
	viper.SetDefault("sponsor.bandwidth_per_tx", int64(345))
	viper.SetDefault("sponsor.daily_tx_estimate", int64(5))
	viper.SetDefault("sponsor.default_days", 3)
	viper.SetDefault("sponsor.min_delegate_sun", int64(1_000_000))
	viper.SetDefault("sponsor.energy_per_sun", "0.0000118") // 随全网质押量浮动
	viper.SetDefault("sponsor.bandwidth_per_sun", "0.0000011")

	viper.SetDefault("monitor.scan_interval", 30*time.Second)
	viper.SetDefault("monitor.confirm_attempts", 10)
	viper.SetDefault("monitor.confirm_delay", 3*time.Second)
	viper.SetDefault("monitor.pending_ttl", 24*time.Hour)
	viper.SetDefault("monitor.activating_timeout", 10*time.Minute)
	viper.SetDefault("monitor.max_sponsor_retries", 3)
	viper.SetDefault("monitor.scan_batch_size", 50)
}
