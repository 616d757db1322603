// Package config reads the server settings from the environment once at
// startup. A .env file is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/internal/database"
)

// Switch is a boolean flag that also accepts on/off
type Switch bool

func (s *Switch) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "on", "yes", "enabled":
		*s = true
		return nil
	case "off", "no", "disabled", "":
		*s = false
		return nil
	}
	v, err := strconv.ParseBool(string(text))
	if err != nil {
		return fmt.Errorf("invalid switch value %q", string(text))
	}
	*s = Switch(v)
	return nil
}

type Config struct {
	EmailConfirmation Switch `env:"EMAIL_CONFIRMATION" envDefault:"on"`
	OpenRegistration  Switch `env:"OPEN_REGISTRATION" envDefault:"on"`
	DeterministicIDs  Switch `env:"DETERMINISTIC_IDS" envDefault:"off"`
	Debug             Switch `env:"DEBUG" envDefault:"off"`

	AccessTTL       time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTTL      time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"336h"`
	AccessAudience  string        `env:"ACCESS_AUDIENCE" envDefault:"access"`
	RefreshAudience string        `env:"REFRESH_AUDIENCE" envDefault:"refresh"`
	Issuer          string        `env:"JWT_ISSUER"`

	KeyID              string `env:"JWT_KEY_ID" envDefault:"user_manager_kid"`
	Modulus            string `env:"JWT_PUBLIC"`
	PublicExponent     string `env:"JWT_PUBLIC_EXPONENT" envDefault:"AQAB"`
	PrivateExponent    string `env:"JWT_SECRET"`
	PrivateKeyFile     string `env:"JWT_PRIVATE_KEY_FILE"`
	PublicKeyFile      string `env:"JWT_PUBLIC_KEY_FILE"`
	DisableCriticalHdr Switch `env:"JWT_DISABLE_CRIT" envDefault:"off"`

	DatabaseDriver   string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseURL      string `env:"DATABASE_URL"`
	PostgresHost     string `env:"POSTGRES_HOST"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"`
	PostgresDB       string `env:"POSTGRES_DB"`
	PostgresPassword string `env:"POSTGRES_PASSWORD"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`

	Port        int    `env:"EXPOSED_PORT" envDefault:"8080"`
	MetricsAddr string `env:"METRICS_ADDR"`

	ClaimServiceURLs      []string      `env:"CLAIM_SERVICE_URLS" envSeparator:","`
	ClaimProviderTimeout  time.Duration `env:"CLAIM_PROVIDER_TIMEOUT" envDefault:"2s"`
	AllowedFragmentClaims []string      `env:"ALLOWED_FRAGMENT_CLAIMS" envSeparator:","`

	LoginRate  float64 `env:"LOGIN_RATE" envDefault:"0.2"`
	LoginBurst int     `env:"LOGIN_BURST" envDefault:"5"`
}

type loadOptions struct {
	files       []string
	environment map[string]string
}

type Option func(*loadOptions)

// WithEnvFiles loads the given dotenv files instead of .env
func WithEnvFiles(files ...string) Option {
	return func(o *loadOptions) {
		o.files = files
	}
}

// WithEnvironment reads from env instead of the process environment. No
// dotenv file is loaded.
func WithEnvironment(environment map[string]string) Option {
	return func(o *loadOptions) {
		o.environment = environment
	}
}

// Load parses and validates the configuration
func Load(opts ...Option) (*Config, error) {
	o := &loadOptions{}
	for _, opt := range opts {
		opt(o)
	}

	if o.environment == nil {
		if err := loadDotEnv(o.files); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: o.environment}); err != nil {
		return nil, configError(err, nil)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(files []string) error {
	if len(files) == 0 {
		// the default file is optional
		_ = godotenv.Load()
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return configError(err, map[string]any{"files": files})
	}
	return nil
}

// Validate checks the settings that would only fail later at runtime
func (c *Config) Validate() error {
	if !c.hasPrivateKey() {
		return configError(errors.New("a private key is required: set JWT_SECRET with JWT_PUBLIC or JWT_PRIVATE_KEY_FILE"), nil)
	}
	if strings.TrimSpace(c.PrivateExponent) != "" && strings.TrimSpace(c.Modulus) == "" {
		return configError(errors.New("JWT_SECRET requires JWT_PUBLIC"), nil)
	}
	if err := c.Tokens().Validate(); err != nil {
		return err
	}
	if c.Port <= 0 || c.Port > 65535 {
		return configError(errors.New("EXPOSED_PORT is out of range"), map[string]any{"port": c.Port})
	}
	if c.LoginBurst < 0 || c.LoginRate < 0 {
		return configError(errors.New("login rate and burst must not be negative"), nil)
	}

	driver := database.NormalizeDriver(c.DatabaseDriver)
	if driver != database.DriverSQLite && driver != database.DriverPostgres {
		return configError(errors.New("unsupported DATABASE_DRIVER"), map[string]any{"driver": c.DatabaseDriver})
	}
	if driver == database.DriverPostgres && c.DatabaseURL == "" && c.PostgresHost == "" {
		return configError(errors.New("postgres requires DATABASE_URL or POSTGRES_HOST"), nil)
	}

	for _, u := range c.ClaimServiceURLs {
		parsed, err := url.Parse(strings.TrimSpace(u))
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return configError(fmt.Errorf("invalid claim service url %q", u), nil)
		}
	}
	return nil
}

func (c *Config) hasPrivateKey() bool {
	return strings.TrimSpace(c.PrivateExponent) != "" || strings.TrimSpace(c.PrivateKeyFile) != ""
}

// Policy returns the registration flags
func (c *Config) Policy() accounts.Policy {
	return accounts.Policy{
		EmailConfirmationRequired: bool(c.EmailConfirmation),
		OpenRegistration:          bool(c.OpenRegistration),
	}
}

func (c *Config) Tokens() accounts.TokenConfig {
	return accounts.TokenConfig{
		AccessTTL:       c.AccessTTL,
		RefreshTTL:      c.RefreshTTL,
		AccessAudience:  c.AccessAudience,
		RefreshAudience: c.RefreshAudience,
		Issuer:          c.Issuer,
	}.WithDefaults()
}

// KeyMaterial reads the PEM files, when configured, and returns the key
// components for the signer
func (c *Config) KeyMaterial() (accounts.KeyMaterial, error) {
	material := accounts.KeyMaterial{
		Modulus:         c.Modulus,
		PublicExponent:  c.PublicExponent,
		PrivateExponent: c.PrivateExponent,
	}

	if c.PrivateKeyFile != "" {
		data, err := os.ReadFile(c.PrivateKeyFile)
		if err != nil {
			return material, configError(err, map[string]any{"file": c.PrivateKeyFile})
		}
		material.PrivateKeyPEM = string(data)
	}

	if c.PublicKeyFile != "" {
		data, err := os.ReadFile(c.PublicKeyFile)
		if err != nil {
			return material, configError(err, map[string]any{"file": c.PublicKeyFile})
		}
		material.PublicKeyPEM = string(data)
	}

	return material, nil
}

// SignerOptions returns the options matching the key settings
func (c *Config) SignerOptions() []accounts.SignerOption {
	opts := []accounts.SignerOption{accounts.WithKeyID(c.KeyID)}
	if c.DisableCriticalHdr {
		opts = append(opts, accounts.WithCriticalClaims())
	}
	return opts
}

func (c *Config) Database() database.Config {
	driver := database.NormalizeDriver(c.DatabaseDriver)
	cfg := database.Config{
		Driver: driver,
		DSN:    c.DatabaseURL,
	}
	if driver == database.DriverPostgres && cfg.DSN == "" {
		cfg.DSN = c.postgresDSN()
	}
	return cfg
}

func (c *Config) postgresDSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.PostgresHost, strconv.Itoa(c.PostgresPort)),
		Path:   "/" + c.PostgresDB,
	}
	if c.PostgresUser != "" {
		if c.PostgresPassword != "" {
			u.User = url.UserPassword(c.PostgresUser, c.PostgresPassword)
		} else {
			u.User = url.User(c.PostgresUser)
		}
	}
	if c.PostgresSSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.PostgresSSLMode}}.Encode()
	}
	return u.String()
}

// Address is the listen address of the API server
func (c *Config) Address() string {
	return ":" + strconv.Itoa(c.Port)
}

// Redacted returns a copy safe to print
func (c *Config) Redacted() Config {
	out := *c
	if out.PrivateExponent != "" {
		out.PrivateExponent = "[redacted]"
	}
	if out.PostgresPassword != "" {
		out.PostgresPassword = "[redacted]"
	}
	if out.DatabaseURL != "" {
		if u, err := url.Parse(out.DatabaseURL); err == nil && u.User != nil {
			if _, ok := u.User.Password(); ok {
				u.User = url.UserPassword(u.User.Username(), "redacted")
				out.DatabaseURL = u.String()
			}
		}
	}
	return out
}

func configError(err error, meta map[string]any) error {
	out := accounts.ErrConfiguration.Clone()
	out.Source = err
	if len(meta) > 0 {
		out = out.WithMetadata(meta)
	}
	return out
}
