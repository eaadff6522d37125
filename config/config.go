package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"elevenlab/purchase"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

type Config struct {
	BindAddr    string
	Env         string
	LogLevel    logrus.Level
	StoreDriver string
	PostgresDSN string
	MongoURI    string
	MongoDB     string
	TokenSecret string
	TokenTTL    time.Duration
	CORSOrigins string
	Policy      purchase.Policy
	TLSCert     string
	TLSKey      string
}

func (c Config) Production() bool {
	return c.Env == "production"
}

// Load reads the environment, after merging .env from the working directory
// when present.
func Load() (Config, error) {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	return FromEnv(os.Getenv)
}

func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	c := Config{
		BindAddr:    get("BIND_ADDR", ""),
		Env:         get("ENV", "development"),
		StoreDriver: strings.ToLower(get("STORE_DRIVER", StoreMemory)),
		PostgresDSN: get("POSTGRES_DSN", ""),
		MongoURI:    get("MONGO_URI", ""),
		MongoDB:     get("MONGO_DB", "eleven-lab-restaurant"),
		TokenSecret: get("ACCESS_TOKEN_SECRET", ""),
		CORSOrigins: get("CORS_ORIGINS", "http://localhost:5173"),
		TLSCert:     get("TLS_CERT", ""),
		TLSKey:      get("TLS_KEY", ""),
	}

	if c.BindAddr == "" {
		c.BindAddr = ":" + get("PORT", "3000")
	}

	lvl, err := logrus.ParseLevel(get("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}
	c.LogLevel = lvl

	c.TokenTTL, err = cast.ToDurationE(get("TOKEN_TTL", "1h"))
	if err != nil {
		return Config{}, fmt.Errorf("parse TOKEN_TTL: %w", err)
	}
	if c.TokenTTL <= 0 {
		return Config{}, errors.New("TOKEN_TTL must be positive")
	}

	err = checkOrigins(c.CORSOrigins)
	if err != nil {
		return Config{}, err
	}

	c.Policy, err = purchase.ParsePolicy(get("PURCHASE_POLICY", ""))
	if err != nil {
		return Config{}, err
	}

	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return Config{}, errors.New("POSTGRES_DSN is required for the postgres store")
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return Config{}, errors.New("MONGO_URI is required for the mongo store")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.TokenSecret == "" {
		if c.Production() {
			return Config{}, errors.New("ACCESS_TOKEN_SECRET is required in production")
		}
		c.TokenSecret = "development-secret"
	}

	return c, nil
}

// checkOrigins accepts either a lone "*" or a comma separated list of
// scheme://host origins.
func checkOrigins(origins string) error {
	if origins == "*" {
		return nil
	}

	for _, o := range strings.Split(origins, ",") {
		o = strings.TrimSpace(o)
		u, err := url.Parse(o)
		if err != nil || u.Scheme == "" || u.Host == "" || strings.Trim(u.Path, "/") != "" {
			return fmt.Errorf("invalid CORS_ORIGINS entry %q", o)
		}
	}

	return nil
}
