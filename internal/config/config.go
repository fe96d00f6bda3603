package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/nimasrn/hlr-gateway/pkg/logger"
)

const ConfigTagName = "env"
const ConfigDefaultTagName = "default"

// Policy variant names accepted by POLICY_VARIANT.
const (
	VariantFilterOnly = "filter-only"
	VariantFullDLR    = "full-dlr"
)

var config *Config

// Config holds config envs and values used by the gateway. Only this
// struct must be used to hold any configuration values, no direct access
// to env, ini or any other config source should be made.
type Config struct {
	AppEnv   string `env:"APP_ENV" default:"dev"`
	AppName  string `env:"APP_NAME" default:"hlr_gateway"`
	AppDebug bool   `env:"APP_DEBUG" default:"1"`

	SMPPListenAddr      string `env:"SMPP_LISTEN_ADDR" default:"0.0.0.0:2776"`
	SMPPSystemID        string `env:"SMPP_SYSTEM_ID"`
	SMPPPassword        string `env:"SMPP_PASSWORD"`
	SMPPBindAttempts    int    `env:"SMPP_BIND_ATTEMPTS" default:"2"`
	SMPPMaxDecodeErrors int    `env:"SMPP_MAX_DECODE_ERRORS" default:"3"`

	HLRBaseURL      string        `env:"HLR_BASE_URL" default:"https://api.tmtvelocity.com/live/json"`
	HLRAPIKey       string        `env:"HLR_API_KEY"`
	HLRAPISecret    string        `env:"HLR_API_SECRET"`
	HLRTimeout      time.Duration `env:"HLR_TIMEOUT" default:"5s"`
	HLRTimeoutClass string        `env:"HLR_TIMEOUT_CLASS" default:"valid"`
	HLRCacheTTL     time.Duration `env:"HLR_CACHE_TTL" default:"24h"`

	PolicyVariant string `env:"POLICY_VARIANT" default:"filter-only"`

	DLRDelay        time.Duration `env:"DLR_DELAY" default:"2s"`
	DLRRespTimeout  time.Duration `env:"DLR_RESP_TIMEOUT" default:"5s"`
	DLRRetryBackoff time.Duration `env:"DLR_RETRY_BACKOFF" default:"500ms"`

	RedisAddr               string `env:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX"`

	DBEnabled bool `env:"DB_ENABLED" default:"1"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	CacheWarmupEnabled bool `env:"CACHE_WARMUP_ENABLED" default:"1"`
	CacheWarmupDays    int  `env:"CACHE_WARMUP_DAYS" default:"7"`
	CacheWarmupLimit   int  `env:"CACHE_WARMUP_LIMIT" default:"100000"`

	PromNamespace  string `env:"PROM_NAMESPACE" default:"hlr_gateway"`
	MetricsAddr    string `env:"METRICS_ADDR" default:":9091"`
	MetricsPath    string `env:"METRICS_PATH" default:"/metrics"`
	MetricsEnabled bool   `env:"METRICS_ENABLED" default:"1"`

	LogLevel []string `env:"LOG_LEVEL"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.New("failed to load configuration file " + path + " error: " + err.Error())
		}
	}

	_, err = env.UnmarshalFromEnviron(c)

	if err != nil {
		return errors.New("failed to map env variables to Configuration object " + " error: " + err.Error())
	}

	if err := c.validate(); err != nil {
		return err
	}

	config = c
	return nil
}

// validate rejects configurations the server cannot start with. A wrong
// bind credential set would silently reject every client, so missing
// ones are fatal.
func (c *Config) validate() error {
	if c.SMPPSystemID == "" || c.SMPPPassword == "" {
		return errors.New("SMPP_SYSTEM_ID and SMPP_PASSWORD are required")
	}
	if c.PolicyVariant != VariantFilterOnly && c.PolicyVariant != VariantFullDLR {
		return errors.Errorf("unknown POLICY_VARIANT %q", c.PolicyVariant)
	}
	if c.HLRTimeoutClass != "valid" && c.HLRTimeoutClass != "invalid" {
		return errors.Errorf("HLR_TIMEOUT_CLASS must be valid or invalid, got %q", c.HLRTimeoutClass)
	}
	if c.SMPPBindAttempts < 1 {
		return errors.New("SMPP_BIND_ATTEMPTS must be at least 1")
	}
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

// Set replaces the loaded configuration. Intended for tests.
func Set(c *Config) {
	config = c
}
