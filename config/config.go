package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"Matchmaking/internal/rating"
)

type Config struct {
	Server struct {
		Port string
	}
	Database struct {
		DSN string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
		// LockTTL of 0 derives it from the identity client, see Config.LockTTL.
		LockTTL time.Duration `mapstructure:"lockTTL"`
	}
	JWT struct {
		Secret string
	}
	Internal struct {
		APIKey string `mapstructure:"apiKey"`
	}
	Identity struct {
		URL     string
		Timeout time.Duration
		Retries int
	}
	Cache struct {
		TTL time.Duration
	}
	Log struct {
		Level string
	}
}

var C Config

// Load reads config/config.yaml (or path, when given) and lets MM_* environment
// variables override any key, e.g. MM_IDENTITY_URL for identity.url.
func Load(path ...string) error {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	file := "config/config.yaml"
	if len(path) > 0 && path[0] != "" {
		file = path[0]
	}
	v.SetConfigFile(file)
	v.SetEnvPrefix("MM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", ":8080")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lockTTL", time.Duration(0))
	v.SetDefault("identity.timeout", 3*time.Second)
	v.SetDefault("identity.retries", 2)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("log.level", "info")
	// keys that only come from env must be known to viper for Unmarshal
	for _, k := range []string{"database.dsn", "redis.addr", "redis.password", "jwt.secret", "internal.apiKey", "identity.url"} {
		v.SetDefault(k, "")
	}

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	C = c
	return nil
}

// Redis locks must outlive the longest settlement: two reads and two writes,
// each retried with the identity client's timeout and backoff.
const (
	settlementCalls = 4
	lockMargin      = 5 * time.Second
)

// LockTTL is redis.lockTTL when set, otherwise the worst case of one settlement.
func (c Config) LockTTL() time.Duration {
	if c.Redis.LockTTL > 0 {
		return c.Redis.LockTTL
	}
	retries := max(c.Identity.Retries, 0)
	perCall := time.Duration(retries+1)*c.Identity.Timeout + time.Duration(retries)*rating.RetryWaitMax
	return settlementCalls*perCall + lockMargin
}
