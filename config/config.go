package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database DatabaseConfig  `mapstructure:"database"`
	Redis    RedisConfig     `mapstructure:"redis"`
	JWT      JWTConfig       `mapstructure:"jwt"`
	OSS      OSSConfig       `mapstructure:"oss"`
	Queue    QueueConfig     `mapstructure:"queue"`
	CORS     CORSConfig      `mapstructure:"cors"`
	Provider ProviderConfig  `mapstructure:"provider"`
	Pricing  PricingConfig   `mapstructure:"pricing"`
	Packages []PackageConfig `mapstructure:"packages"`
	Task     TaskConfig      `mapstructure:"task"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// SignupCredits 注册赠送的永久积分
	SignupCredits int64 `mapstructure:"signup_credits"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

type QueueConfig struct {
	GenerationQueue string `mapstructure:"generation_queue"`
	MaxWorkers      int    `mapstructure:"max_workers"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// ProviderConfig 生成服务商配置
type ProviderConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	CallbackURL    string `mapstructure:"callback_url"`    // 推送回调地址（对外可达）
	CallbackSecret string `mapstructure:"callback_secret"` // 回调鉴权共享密钥
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PricingConfig 积分定价配置
type PricingConfig struct {
	CacheTTLSeconds int              `mapstructure:"cache_ttl_seconds"`
	DefaultCosts    map[string]int64 `mapstructure:"default_costs"` // model -> 每次生成积分
}

// PackageConfig 订阅套餐配置
type PackageConfig struct {
	ID             string  `mapstructure:"id"`
	DisplayName    string  `mapstructure:"display_name"`
	DurationDays   int     `mapstructure:"duration_days"`
	DailyCredits   int64   `mapstructure:"daily_credits"`
	MonthlyCredits int64   `mapstructure:"monthly_credits"`
	Price          float64 `mapstructure:"price"`
}

// TaskConfig 生成任务重试与清理配置
type TaskConfig struct {
	MaxTransientRetries int `mapstructure:"max_transient_retries"` // 资源类失败最大重试次数
	MaxContentRetries   int `mapstructure:"max_content_retries"`   // 内容类失败最大重试次数
	RetryBackoffSeconds int `mapstructure:"retry_backoff_seconds"` // 指数退避基数
	StaleAfterMinutes   int `mapstructure:"stale_after_minutes"`   // pending 超时判定
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	// 检查 config.local.yaml 是否存在
	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// PackageByID 查找订阅套餐
func (c *Config) PackageByID(id string) (*PackageConfig, bool) {
	for i := range c.Packages {
		if c.Packages[i].ID == id {
			return &c.Packages[i], true
		}
	}
	return nil, false
}
