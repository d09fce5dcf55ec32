// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Store drivers.
const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Config holds every setting of the api process.
type Config struct {
	// Storage
	MongoURI          string `envconfig:"MONGODB_URI"`
	MongoDatabase     string `envconfig:"MONGODB_DATABASE" default:"retrorade"`
	MongoTransactions bool   `envconfig:"MONGODB_TRANSACTIONS" default:"false"`
	StoreDriver       string `envconfig:"STORE_DRIVER" default:"mongo"`

	// Tokens. JWT_KEYS is "kid:secret,kid2:secret2" and enables rotation;
	// JWT_SECRET is the single key fallback.
	JWTSecret    string        `envconfig:"JWT_SECRET"`
	JWTKeys      string        `envconfig:"JWT_KEYS"`
	JWTActiveKID string        `envconfig:"JWT_ACTIVE_KID"`
	TokenTTL     time.Duration `envconfig:"TOKEN_TTL" default:"1h"`

	// Transports
	Port        string   `envconfig:"PORT" default:"50051"`
	HTTPAddr    string   `envconfig:"HTTP_ADDR" default:":8080"`
	RateRPM     int      `envconfig:"RATE_LIMIT_RPM" default:"10"`
	TLSCert     string   `envconfig:"TLS_CERT"`
	TLSKey      string   `envconfig:"TLS_KEY"`
	RequireTLS  bool     `envconfig:"REQUIRE_TLS" default:"false"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173"`
	GinMode     string   `envconfig:"GIN_MODE" default:"release"`

	// Messaging
	NATSURL           string        `envconfig:"NATS_URL"`
	ReconcileInterval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"10m"`
	MaxContentLength  int           `envconfig:"MAX_CONTENT_LENGTH" default:"2000"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load reads envFile when it exists, then the environment. Variables already
// set in the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that depend on each other.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			return errors.New("MONGODB_URI must be set")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.JWTSecret == "" && c.JWTKeys == "" {
		return errors.New("either JWT_SECRET or JWT_KEYS must be set")
	}
	if c.JWTKeys != "" {
		keys, err := c.JWTKeyMap()
		if err != nil {
			return err
		}
		if _, ok := keys[c.JWTActiveKID]; !ok {
			return fmt.Errorf("JWT_ACTIVE_KID %q is not in JWT_KEYS", c.JWTActiveKID)
		}
	}

	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("TLS_CERT and TLS_KEY must be set together")
	}
	if c.RequireTLS && c.TLSCert == "" {
		return errors.New("REQUIRE_TLS is true but TLS_CERT/TLS_KEY are not configured")
	}
	if c.MaxContentLength <= 0 {
		return errors.New("MAX_CONTENT_LENGTH must be positive")
	}
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	return nil
}

// JWTKeyMap parses JWT_KEYS into key id to secret.
func (c Config) JWTKeyMap() (map[string]string, error) {
	keys := map[string]string{}
	for _, p := range strings.Split(c.JWTKeys, ",") {
		if p == "" {
			continue
		}
		kid, secret, ok := strings.Cut(p, ":")
		if !ok || kid == "" || secret == "" {
			return nil, fmt.Errorf("invalid JWT_KEYS entry: %s", p)
		}
		keys[kid] = secret
	}
	if len(keys) == 0 {
		return nil, errors.New("JWT_KEYS has no entries")
	}
	return keys, nil
}

// GRPCAddr is the listen address of the gRPC server.
func (c Config) GRPCAddr() string {
	return ":" + c.Port
}
