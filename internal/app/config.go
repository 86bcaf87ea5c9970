package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/craftedbits/storefront/internal/domain/pricing"
)

// Config holds the complete application configuration, loadable from
// environment variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (STORE_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Pricing      PricingConfig
	Gateway      GatewayConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// PricingConfig holds the tax and shipping parameters as decimal strings.
type PricingConfig struct {
	TaxRate               string `default:"0.08"  usage:"Sales tax rate applied to goods plus shipping" flag:"tax-rate"`
	FreeShippingThreshold string `default:"100"   usage:"Post-discount subtotal above which standard shipping is free" flag:"free-shipping-threshold"`
	StandardShippingRate  string `default:"5.99"  usage:"Flat standard shipping rate" flag:"standard-shipping-rate"`
	ExpressShippingRate   string `default:"25.00" usage:"Flat express shipping rate" flag:"express-shipping-rate"`
}

// Parse converts the string fields into the pricing engine's decimal config.
func (c PricingConfig) Parse() (pricing.Config, error) {
	var (
		cfg pricing.Config
		err error
	)
	if cfg.TaxRate, err = decimal.NewFromString(c.TaxRate); err != nil {
		return cfg, errors.Wrap(err, "tax rate")
	}
	if cfg.FreeShippingThreshold, err = decimal.NewFromString(c.FreeShippingThreshold); err != nil {
		return cfg, errors.Wrap(err, "free shipping threshold")
	}
	if cfg.StandardShippingRate, err = decimal.NewFromString(c.StandardShippingRate); err != nil {
		return cfg, errors.Wrap(err, "standard shipping rate")
	}
	if cfg.ExpressShippingRate, err = decimal.NewFromString(c.ExpressShippingRate); err != nil {
		return cfg, errors.Wrap(err, "express shipping rate")
	}
	return cfg, nil
}

// GatewayConfig configures the outbound payment gateway client.
type GatewayConfig struct {
	BaseURL string        `usage:"Payment gateway API base URL" flag:"gateway-url"`
	Secret  string        `usage:"Payment gateway API secret (STORE_GATEWAY_SECRET)" flag:"gateway-secret"`
	Timeout time.Duration `default:"10s" usage:"Payment gateway request timeout" flag:"gateway-timeout"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	}
	if cfg.Gateway.BaseURL == "" {
		return nil, errors.New("payment gateway URL is required: set STORE_GATEWAY_BASEURL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL and PORT
// to the application's STORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
