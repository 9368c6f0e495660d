package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Neo4j     Neo4jConfig     `mapstructure:"neo4j"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

// Neo4jConfig 图数据库连接配置，Bolt 优先，HTTP Query API 作为降级通道
type Neo4jConfig struct {
	URI            string `mapstructure:"uri"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	Database       string `mapstructure:"database"`
	HTTPEndpoint   string `mapstructure:"http_endpoint"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxPoolSize    int    `mapstructure:"max_pool_size"`
}

// RelayConfig 查询中继行为配置
type RelayConfig struct {
	DefaultLimit int  `mapstructure:"default_limit"` // 自动附加的 LIMIT
	MaxRows      int  `mapstructure:"max_rows"`      // 判分/返回的行数上限
	MockFallback bool `mapstructure:"mock_fallback"` // 主备通道均失败时返回内置样例数据
}

// ScoringConfig 弱点分数的调参常量，经验值，支持热更新
type ScoringConfig struct {
	MissPenalty     float64 `mapstructure:"miss_penalty"`
	TimeBonusWeight float64 `mapstructure:"time_bonus_weight"`
	TimeBonusDays   float64 `mapstructure:"time_bonus_days"`
	StaleCapDays    float64 `mapstructure:"stale_cap_days"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	OSSEndpoint   string `mapstructure:"oss_endpoint"`
	OSSAccessKey  string `mapstructure:"oss_access_key"`
	OSSSecretKey  string `mapstructure:"oss_secret_key"`
	OSSBucket     string `mapstructure:"oss_bucket"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("CYPHER_QUEST")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Neo4j
	viper.BindEnv("neo4j.uri", "NEO4J_URI")
	viper.BindEnv("neo4j.user", "NEO4J_USER")
	viper.BindEnv("neo4j.password", "NEO4J_PASSWORD")
	viper.BindEnv("neo4j.database", "NEO4J_DATABASE")
	viper.BindEnv("neo4j.http_endpoint", "NEO4J_HTTP_ENDPOINT")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// Storage
	viper.BindEnv("storage.type", "STORAGE_TYPE")
	viper.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("storage.minio_bucket", "MINIO_BUCKET")
	viper.BindEnv("storage.oss_endpoint", "OSS_ENDPOINT")
	viper.BindEnv("storage.oss_access_key", "OSS_ACCESS_KEY")
	viper.BindEnv("storage.oss_secret_key", "OSS_SECRET_KEY")
	viper.BindEnv("storage.oss_bucket", "OSS_BUCKET")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour
	applyDefaults(&cfg)

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Relay.DefaultLimit <= 0 {
		cfg.Relay.DefaultLimit = 50
	}
	if cfg.Relay.MaxRows <= 0 {
		cfg.Relay.MaxRows = 100
	}
	if cfg.Scoring.MissPenalty == 0 {
		cfg.Scoring.MissPenalty = 0.5
	}
	if cfg.Scoring.TimeBonusWeight == 0 {
		cfg.Scoring.TimeBonusWeight = 0.2
	}
	if cfg.Scoring.TimeBonusDays == 0 {
		cfg.Scoring.TimeBonusDays = 7
	}
	if cfg.Scoring.StaleCapDays == 0 {
		cfg.Scoring.StaleCapDays = 30
	}
	if cfg.Neo4j.TimeoutSeconds <= 0 {
		cfg.Neo4j.TimeoutSeconds = 10
	}
	if cfg.Neo4j.MaxPoolSize <= 0 {
		cfg.Neo4j.MaxPoolSize = 50
	}
	if cfg.Neo4j.Database == "" {
		cfg.Neo4j.Database = "neo4j"
	}
}
