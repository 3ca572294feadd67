package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// ErrMissingStoreConfig 数据库连接信息缺失，启动时视为致命错误
var ErrMissingStoreConfig = errors.New("store connection endpoint is not configured")

// Config 服务配置，全部来自环境变量
type Config struct {
	ServerPort  string
	Environment string

	AdminID       string
	AdminPassword string

	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPath     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RocketMQNameServer string

	UploadDir     string
	PublicBaseURL string
	VotersFile    string

	SessionTTL      time.Duration
	StaleSessionAge time.Duration
	ReaperInterval  time.Duration

	LoginRate  float64
	LoginBurst int

	LogLevel string
	LogFile  string
}

// Load 加载.env（如果存在）并读取环境变量
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("未找到.env文件，仅使用进程环境变量")
	}

	cfg := &Config{
		ServerPort:  getEnv("SERVER_PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		AdminID:       getEnv("ADMIN_ID", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		DBDriver:   getEnv("DB_DRIVER", "mysql"),
		DBHost:     getEnv("DB_HOST", ""),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", ""),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "kpr_voting"),
		DBPath:     getEnv("DB_PATH", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RocketMQNameServer: getEnv("ROCKETMQ_NAMESRV_ADDR", ""),

		UploadDir:     getEnv("UPLOAD_DIR", "./uploads"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8090"),
		VotersFile:    getEnv("VOTERS_FILE", ""),

		SessionTTL:      getEnvDuration("SESSION_TTL", 12*time.Hour),
		StaleSessionAge: getEnvDuration("STALE_SESSION_AGE", 2*time.Hour),
		ReaperInterval:  getEnvDuration("REAPER_INTERVAL", 0),

		LoginRate:  getEnvFloat("LOGIN_RATE", 1),
		LoginBurst: getEnvInt("LOGIN_BURST", 5),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查数据库连接信息是否完整
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "mysql":
		if c.DBHost == "" || c.DBUser == "" {
			return fmt.Errorf("%w: DB_HOST and DB_USER are required for mysql", ErrMissingStoreConfig)
		}
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("%w: DB_PATH is required for sqlite", ErrMissingStoreConfig)
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	return nil
}

// MySQLDSN 构建MySQL DSN
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// IsDevelopment 是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// getEnv 获取环境变量值或使用默认值
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}
