// Package config 从环境变量（可选 .env）加载运行配置。
package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// 后端取值。
const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
	BackendDisk     = "disk"
	BackendMinio    = "minio"
	BackendB2       = "b2"
)

// DefaultAvatarSizeDP 是未配置头像尺寸时使用的 dp 值。
const DefaultAvatarSizeDP = 48

// Config 是进程级配置。
type Config struct {
	Account AccountConfig
	Sync    SyncConfig
	HTTP    HTTPConfig
	Profile ProfileStoreConfig
	Avatar  AvatarConfig
	// AccountBackend 为账号 user data 的存储：memory 或 postgres。
	AccountBackend string
	DBDSN          string
	StatusAddr     string
	LogLevel       string
	LogFormat      string
}

// AccountConfig 描述单个 ownCloud 账号的凭证。
type AccountConfig struct {
	ServerURL         string
	Username          string
	Password          string
	AccessToken       string
	RefreshToken      string
	OAuthClientID     string
	OAuthClientSecret string
}

// SyncConfig 控制同步周期与头像尺寸。
type SyncConfig struct {
	Interval        time.Duration
	Concurrency     int
	AvatarDimension int
}

// HTTPConfig 控制远端请求。
type HTTPConfig struct {
	RateLimit  float64
	MaxRetries int
	Timeout    time.Duration
}

// ProfileStoreConfig 选择资料库后端。
type ProfileStoreConfig struct {
	Backend       string
	MongoURI      string
	MongoDatabase string
}

// AvatarConfig 选择头像缓存后端。
type AvatarConfig struct {
	Backend       string
	Dir           string
	MemoryEntries int
	Minio         MinioConfig
	B2            B2Config
}

// MinioConfig 是 S3 兼容存储配置。
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// B2Config 是 Backblaze B2 配置。
type B2Config struct {
	KeyID          string
	ApplicationKey string
	Bucket         string
}

// Load 读取 .env（存在时）与环境变量并校验。
func Load(log Logger) (Config, error) {
	if err := loadDotEnv(log); err != nil {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv 只读取环境变量，不做校验。
func FromEnv() Config {
	return Config{
		Account: AccountConfig{
			ServerURL:         strings.TrimSuffix(getEnv("OC_SERVER_URL", ""), "/"),
			Username:          getEnv("OC_USERNAME", ""),
			Password:          getEnv("OC_PASSWORD", ""),
			AccessToken:       getEnv("OC_ACCESS_TOKEN", ""),
			RefreshToken:      getEnv("OC_REFRESH_TOKEN", ""),
			OAuthClientID:     getEnv("OC_OAUTH_CLIENT_ID", ""),
			OAuthClientSecret: getEnv("OC_OAUTH_CLIENT_SECRET", ""),
		},
		Sync: SyncConfig{
			Interval:        getEnvDuration("SYNC_INTERVAL", 15*time.Minute),
			Concurrency:     getEnvInt("SYNC_CONCURRENCY", 2),
			AvatarDimension: avatarDimension(),
		},
		HTTP: HTTPConfig{
			RateLimit:  getEnvFloat("HTTP_RATE_LIMIT", 5),
			MaxRetries: getEnvInt("HTTP_MAX_RETRIES", 3),
			Timeout:    getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		},
		Profile: ProfileStoreConfig{
			Backend:       strings.ToLower(getEnv("PROFILE_BACKEND", BackendMemory)),
			MongoURI:      getEnv("MONGO_URI", ""),
			MongoDatabase: getEnv("MONGO_DATABASE", "owncloud_desktop"),
		},
		Avatar: AvatarConfig{
			Backend:       strings.ToLower(getEnv("AVATAR_BACKEND", BackendDisk)),
			Dir:           getEnv("AVATAR_DIR", "./data/avatars"),
			MemoryEntries: getEnvInt("AVATAR_MEMORY_ENTRIES", 64),
			Minio: MinioConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", ""),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				Bucket:    getEnv("MINIO_BUCKET", "avatars"),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			},
			B2: B2Config{
				KeyID:          getEnv("B2_KEY_ID", ""),
				ApplicationKey: getEnv("B2_APPLICATION_KEY", ""),
				Bucket:         getEnv("B2_BUCKET", ""),
			},
		},
		AccountBackend: strings.ToLower(getEnv("ACCOUNT_BACKEND", BackendMemory)),
		DBDSN:          getEnv("DB_DSN", ""),
		StatusAddr:     getEnv("STATUS_ADDR", "127.0.0.1:8089"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
	}
}

// avatarDimension 优先取 AVATAR_DIMENSION，否则按 dp × 屏幕密度四舍五入。
func avatarDimension() int {
	if v := getEnvInt("AVATAR_DIMENSION", 0); v > 0 {
		return v
	}
	dp := getEnvFloat("AVATAR_SIZE_DP", DefaultAvatarSizeDP)
	density := getEnvFloat("DISPLAY_DENSITY", 1)
	return int(math.Round(dp * density))
}

// Validate 校验必填项与后端取值。
func (c Config) Validate() error {
	var errs []error
	if c.Account.ServerURL == "" {
		errs = append(errs, errors.New("OC_SERVER_URL 未设置"))
	} else if u, err := url.Parse(c.Account.ServerURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("OC_SERVER_URL 无效: %q", c.Account.ServerURL))
	}
	if c.Account.Username == "" {
		errs = append(errs, errors.New("OC_USERNAME 未设置"))
	}
	if c.Account.Password == "" && c.Account.AccessToken == "" {
		errs = append(errs, errors.New("OC_PASSWORD 与 OC_ACCESS_TOKEN 至少设置一个"))
	}
	if c.Sync.AvatarDimension <= 0 {
		errs = append(errs, fmt.Errorf("头像尺寸无效: %d", c.Sync.AvatarDimension))
	}
	if c.Sync.Interval <= 0 {
		errs = append(errs, fmt.Errorf("SYNC_INTERVAL 无效: %s", c.Sync.Interval))
	}
	switch c.Profile.Backend {
	case BackendMemory:
	case BackendMongo:
		if c.Profile.MongoURI == "" {
			errs = append(errs, errors.New("PROFILE_BACKEND=mongo 需要 MONGO_URI"))
		}
	case BackendPostgres:
		if c.DBDSN == "" {
			errs = append(errs, errors.New("PROFILE_BACKEND=postgres 需要 DB_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("未知的 PROFILE_BACKEND: %q", c.Profile.Backend))
	}
	switch c.AccountBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DBDSN == "" {
			errs = append(errs, errors.New("ACCOUNT_BACKEND=postgres 需要 DB_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("未知的 ACCOUNT_BACKEND: %q", c.AccountBackend))
	}
	switch c.Avatar.Backend {
	case BackendMemory, BackendDisk:
	case BackendMinio:
		if c.Avatar.Minio.Endpoint == "" || c.Avatar.Minio.Bucket == "" {
			errs = append(errs, errors.New("AVATAR_BACKEND=minio 需要 MINIO_ENDPOINT 与 MINIO_BUCKET"))
		}
	case BackendB2:
		if c.Avatar.B2.KeyID == "" || c.Avatar.B2.ApplicationKey == "" || c.Avatar.B2.Bucket == "" {
			errs = append(errs, errors.New("AVATAR_BACKEND=b2 需要 B2_KEY_ID、B2_APPLICATION_KEY 与 B2_BUCKET"))
		}
	default:
		errs = append(errs, fmt.Errorf("未知的 AVATAR_BACKEND: %q", c.Avatar.Backend))
	}
	return errors.Join(errs...)
}

// Summary 返回可写入日志的配置摘要，凭证已遮蔽。
func (c Config) Summary() []any {
	return []any{
		"server", c.Account.ServerURL,
		"user", c.Account.Username,
		"password", mask(c.Account.Password),
		"access_token", mask(c.Account.AccessToken),
		"avatar_dimension", c.Sync.AvatarDimension,
		"interval", c.Sync.Interval.String(),
		"profile_backend", c.Profile.Backend,
		"account_backend", c.AccountBackend,
		"avatar_backend", c.Avatar.Backend,
		"db_dsn", maskDSN(c.DBDSN),
		"mongo_uri", maskDSN(c.Profile.MongoURI),
	}
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}

// maskDSN 遮蔽 URL 形式 DSN 中的密码。
func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
