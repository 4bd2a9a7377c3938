package config

import (
	"encoding/json"
	"os"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	JWT      JWTConfig      `json:"jwt"`
	Email    EmailConfig    `json:"email"`
	Webhook  WebhookConfig  `json:"webhook"`
	Health   HealthConfig   `json:"health"`
	Sync     SyncConfig     `json:"sync"`
}

type ServerConfig struct {
	Port string `json:"port"`
	Mode string `json:"mode"` // debug, release
}

type DatabaseConfig struct {
	Type     string `json:"type"` // mysql, postgres
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
}

type JWTConfig struct {
	Secret     string `json:"secret"`
	ExpireTime int    `json:"expire_time"` // 小时
}

type EmailConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
}

// WebhookConfig 入站回调的签名密钥配置
// 两个密钥属于不同的信任边界，必须分开配置
type WebhookConfig struct {
	CallbackSecret     string `json:"callback_secret"`     // 命令回调签名密钥（带时间戳方案）
	EventSecret        string `json:"event_secret"`        // 审计事件签名密钥（简单HMAC方案）
	TimestampTolerance int    `json:"timestamp_tolerance"` // 秒，默认300
}

type HealthConfig struct {
	ProbeTimeout int    `json:"probe_timeout"` // 秒，单实例探测超时
	Workers      int    `json:"workers"`       // 批量探测并发数
	CronExpr     string `json:"cron_expr"`     // 为空则不启用定时探测
	AlertEmail   string `json:"alert_email"`   // 实例下线告警收件人，为空则不发送
}

type SyncConfig struct {
	Timeout        int    `json:"timeout"`         // 秒，单实例同步超时
	Workers        int    `json:"workers"`         // 批量同步并发数
	CronExpr       string `json:"cron_expr"`       // 为空则不启用定时同步
	StaleThreshold int    `json:"stale_threshold"` // 小时，租户缓存过期阈值
}

var GlobalConfig *Config

func LoadConfig(path string) error {
	GlobalConfig = defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		// 配置文件不存在时使用默认配置
		return nil
	}

	if err := json.Unmarshal(data, GlobalConfig); err != nil {
		return err
	}

	applyDefaults(GlobalConfig)
	return nil
}

func defaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Type:     "mysql",
			Host:     "localhost",
			Port:     "3306",
			User:     "root",
			Password: "root",
			DBName:   "console",
		},
		JWT: JWTConfig{
			Secret:     "your-secret-key-change-in-production",
			ExpireTime: 24,
		},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Webhook.TimestampTolerance <= 0 {
		cfg.Webhook.TimestampTolerance = 300
	}
	if cfg.Health.ProbeTimeout <= 0 {
		cfg.Health.ProbeTimeout = 5
	}
	if cfg.Health.Workers <= 0 {
		cfg.Health.Workers = 4
	}
	if cfg.Sync.Timeout <= 0 {
		cfg.Sync.Timeout = 30
	}
	if cfg.Sync.Workers <= 0 {
		cfg.Sync.Workers = 4
	}
	if cfg.Sync.StaleThreshold <= 0 {
		cfg.Sync.StaleThreshold = 24
	}
}
