// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration values.  Each field maps to the
// environment variable named in its envconfig tag.
type Config struct {
	Env  string `envconfig:"APP_ENV" default:"dev"`
	Port string `envconfig:"APP_PORT" default:"8080"`

	// StoreDriver selects the persistence backend: mysql or memory.
	StoreDriver   string `envconfig:"STORE_DRIVER" default:"mysql"`
	DBUser        string `envconfig:"DB_USER"`
	DBPass        string `envconfig:"DB_PASS"`
	DBHost        string `envconfig:"DB_HOST" default:"127.0.0.1"`
	DBPort        string `envconfig:"DB_PORT" default:"3306"`
	DBName        string `envconfig:"DB_NAME"`
	DBAutoMigrate bool   `envconfig:"DB_AUTO_MIGRATE" default:"false"`

	JWTSecret    string `envconfig:"JWT_SECRET" required:"true"`
	AccessTTLMin int    `envconfig:"ACCESS_TOKEN_TTL_MIN" default:"60"`
	BcryptCost   int    `envconfig:"BCRYPT_COST" default:"12"`

	// RabbitMQURL empty means notifications go straight to the mailer.
	RabbitMQURL   string `envconfig:"RABBITMQ_URL"`
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080"`

	UploadDir      string `envconfig:"UPLOAD_DIR" default:"./uploads"`
	UploadMaxBytes int64  `envconfig:"UPLOAD_MAX_BYTES" default:"5242880"`

	SMTPConfig

	// Bootstrap admin, created on startup when both are set and the email
	// is not yet registered.
	BootstrapAdminEmail    string `envconfig:"BOOTSTRAP_ADMIN_EMAIL"`
	BootstrapAdminPassword string `envconfig:"BOOTSTRAP_ADMIN_PASSWORD"`

	// SeedFile is a JSON fixture of halls and accounts loaded into the
	// memory store at startup.
	SeedFile string `envconfig:"SEED_FILE"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// SMTPConfig configures the outgoing relay.  An empty host makes the
// service log emails instead of sending them.  It is embedded so the
// variables keep their SMTP_ names without a nested prefix.
type SMTPConfig struct {
	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	SMTPFrom     string `envconfig:"SMTP_FROM" default:"no-reply@localhost"`
}

// MinJWTSecretBytes is the shortest HMAC key accepted for access tokens.
const MinJWTSecretBytes = 32

// Dev reports whether the service runs in development mode.
func (c Config) Dev() bool { return c.Env == "dev" }

// Parse reads the environment into a Config and checks cross-field rules.
func Parse() (Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, err
	}
	// required only means "set"; an empty value would sign with an empty key
	if len(strings.TrimSpace(c.JWTSecret)) < MinJWTSecretBytes {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least %d bytes", MinJWTSecretBytes)
	}
	switch c.StoreDriver {
	case "memory":
	case "mysql":
		if c.DBUser == "" || c.DBName == "" {
			return Config{}, fmt.Errorf("STORE_DRIVER=mysql requires DB_USER and DB_NAME")
		}
	default:
		return Config{}, fmt.Errorf("invalid STORE_DRIVER %q", c.StoreDriver)
	}
	if c.AccessTTLMin <= 0 {
		return Config{}, fmt.Errorf("ACCESS_TOKEN_TTL_MIN must be positive")
	}
	return c, nil
}

// Load reads an optional .env file, then the environment.  Invalid or
// missing required values halt the program.
func Load() Config {
	_ = godotenv.Load() // a missing .env is fine
	c, err := Parse()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return c
}
