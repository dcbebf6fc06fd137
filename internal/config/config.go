package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Mail      MailConfig      `mapstructure:"mail"`
	OrderAPI  OrderAPIConfig  `mapstructure:"order_api"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Backup    BackupConfig    `mapstructure:"backup"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type ServerConfig struct {
	Environment string `mapstructure:"environment"`
	Port        string `mapstructure:"port"`
}

type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SchedulerConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	MaxWorkers   int           `mapstructure:"max_workers"`
}

type MailConfig struct {
	// Credentials maps a mailbox address to its IMAP password. Credential
	// storage proper lives outside this service; this is the hand-off point.
	Credentials map[string]string `mapstructure:"credentials"`
	DialTimeout time.Duration     `mapstructure:"dial_timeout"`
}

type OrderAPIConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type NotifyConfig struct {
	ThrottleTTL time.Duration `mapstructure:"throttle_ttl"`
}

type BackupConfig struct {
	Directory string `mapstructure:"directory"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second"`
}

func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("MAILOPS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.environment", "dev")
	viper.SetDefault("server.port", ":8080")
	viper.SetDefault("scheduler.tick_interval", time.Second)
	viper.SetDefault("scheduler.max_workers", 8)
	viper.SetDefault("mail.dial_timeout", 30*time.Second)
	viper.SetDefault("order_api.timeout", 15*time.Second)
	viper.SetDefault("order_api.cache_ttl", 10*time.Minute)
	viper.SetDefault("notify.throttle_ttl", 15*time.Minute)
	viper.SetDefault("backup.directory", "./backups")
	viper.SetDefault("ratelimit.requests_per_second", 5)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}
