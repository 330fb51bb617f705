package internal

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	X402          X402Config          `mapstructure:"x402"`
	DataForSEO    DataForSEOConfig    `mapstructure:"dataforseo"`
	Pricing       PricingConfig       `mapstructure:"pricing"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

// SecurityConfig holds the key used to validate externally issued access
// tokens. Identity is optional for metered routes, required for history.
type SecurityConfig struct {
	JWTPublicKey string `mapstructure:"jwt_public_key"`
}

type X402Config struct {
	FacilitatorURL    string        `mapstructure:"facilitator_url"`
	Network           string        `mapstructure:"network"`
	PayTo             string        `mapstructure:"pay_to"`
	Asset             string        `mapstructure:"asset"`
	AssetName         string        `mapstructure:"asset_name"`
	AssetVersion      string        `mapstructure:"asset_version"`
	MaxTimeoutSeconds int           `mapstructure:"max_timeout_seconds"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

type DataForSEOConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// PricingConfig drives the price resolver. Prices are display strings like
// "$0.03"; batch routes charge per unit up to MaxUnits.
type PricingConfig struct {
	OverviewPrice  string `mapstructure:"overview_price"`
	BatchUnitPrice string `mapstructure:"batch_unit_price"`
	BatchMaxUnits  int    `mapstructure:"batch_max_units"`
	IdeasPrice     string `mapstructure:"ideas_price"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// LoadConfigFromEnv builds a Config from environment variables for container
// deployments where no config.yml is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("BASE_URL", "http://localhost:8080"),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_URL", ""),
		},
		Security: SecurityConfig{
			JWTPublicKey: getEnv("JWT_PUBLIC_KEY", ""),
		},
		X402: X402Config{
			FacilitatorURL:    getEnv("X402_FACILITATOR_URL", "https://x402.org/facilitator"),
			Network:           getEnv("X402_NETWORK", "eip155:8453"),
			PayTo:             getEnv("X402_PAY_TO", ""),
			Asset:             getEnv("X402_ASSET", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
			AssetName:         getEnv("X402_ASSET_NAME", "USD Coin"),
			AssetVersion:      getEnv("X402_ASSET_VERSION", "2"),
			MaxTimeoutSeconds: getEnvAsInt("X402_MAX_TIMEOUT_SECONDS", 3600),
			RequestTimeout:    getEnvAsDuration("X402_REQUEST_TIMEOUT", 10*time.Second),
		},
		DataForSEO: DataForSEOConfig{
			BaseURL:  getEnv("DATAFORSEO_BASE_URL", "https://api.dataforseo.com"),
			Username: getEnv("DATAFORSEO_USERNAME", ""),
			Password: getEnv("DATAFORSEO_PASSWORD", ""),
			Timeout:  getEnvAsDuration("DATAFORSEO_TIMEOUT", 30*time.Second),
			CacheTTL: getEnvAsDuration("DATAFORSEO_CACHE_TTL", 10*time.Minute),
		},
		Pricing: PricingConfig{
			OverviewPrice:  getEnv("PRICE_OVERVIEW", "$0.03"),
			BatchUnitPrice: getEnv("PRICE_BATCH_UNIT", "$0.03"),
			BatchMaxUnits:  getEnvAsInt("PRICE_BATCH_MAX_UNITS", 25),
			IdeasPrice:     getEnv("PRICE_IDEAS", "$0.025"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 20),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 5),
		},
	}
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.X402.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("x402 config: %v", err))
	}

	if err := c.Pricing.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("pricing config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *X402Config) Validate() error {
	if c.FacilitatorURL == "" {
		return errors.New("facilitator_url is required")
	}
	if _, err := url.Parse(c.FacilitatorURL); err != nil {
		return fmt.Errorf("invalid facilitator_url: %w", err)
	}
	if c.PayTo == "" {
		return errors.New("pay_to address is required")
	}
	if !strings.HasPrefix(c.Network, "eip155:") {
		return fmt.Errorf("network must be a CAIP-2 eip155 identifier, got %s", c.Network)
	}
	if c.MaxTimeoutSeconds <= 0 {
		return errors.New("max_timeout_seconds must be positive")
	}
	return nil
}

func (c *PricingConfig) Validate() error {
	if c.BatchMaxUnits <= 0 {
		return errors.New("batch_max_units must be positive")
	}
	for _, p := range []string{c.OverviewPrice, c.BatchUnitPrice, c.IdeasPrice} {
		if !strings.HasPrefix(p, "$") {
			return fmt.Errorf("price %q must be a dollar string like $0.03", p)
		}
	}
	return nil
}

func (c *SecurityConfig) GetPublicKey() (*rsa.PublicKey, error) {
	keyData, err := base64.StdEncoding.DecodeString(c.JWTPublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, errors.New("failed to parse PEM block")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return rsaPub, nil
}
