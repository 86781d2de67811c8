// Package config loads the service configuration from defaults, an optional
// YAML file, `.env`, environment variables and explicit overrides, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/b4fun/oidcapps/oidcauth"
)

// EnvPrefix prefixes every environment variable, e.g. APP_SERVER_PORT.
const EnvPrefix = "APP"

// AppConfig holds the application configuration.
type AppConfig struct {
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	OIDC   OIDCConfig   `mapstructure:"oidc"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// OIDCConfig holds the settings consumed by the authentication middleware.
type OIDCConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	IssuerURL     string   `mapstructure:"issuer_url"`
	ClientID      string   `mapstructure:"client_id"`
	ClientSecret  string   `mapstructure:"client_secret"`
	RedirectURL   string   `mapstructure:"redirect_url"`
	CAFile        string   `mapstructure:"ca_file"`
	UserNameClaim string   `mapstructure:"user_name_claim"`
	RolesClaim    string   `mapstructure:"roles_claim"`
	Scopes        []string `mapstructure:"scopes"`
	SessionCookie string   `mapstructure:"session_cookie"`
}

// Params converts the configuration into oidcauth.Params.
func (c OIDCConfig) Params() oidcauth.Params {
	return oidcauth.Params{
		Disabled:      !c.Enabled,
		IssuerURL:     c.IssuerURL,
		ClientID:      c.ClientID,
		ClientSecret:  c.ClientSecret,
		UserNameClaim: c.UserNameClaim,
		RolesClaim:    c.RolesClaim,
		CAFile:        c.CAFile,
	}
}

// SessionEnabled reports whether the browser login flow can run.
func (c OIDCConfig) SessionEnabled() bool {
	return c.Enabled && c.RedirectURL != ""
}

// keys bound to environment variables. Unmarshal only sees env values for
// keys viper already knows about.
var keys = []string{
	"server.host",
	"server.port",
	"server.shutdown_timeout",
	"log.level",
	"log.format",
	"oidc.enabled",
	"oidc.issuer_url",
	"oidc.client_id",
	"oidc.client_secret",
	"oidc.redirect_url",
	"oidc.ca_file",
	"oidc.user_name_claim",
	"oidc.roles_claim",
	"oidc.scopes",
	"oidc.session_cookie",
}

// bareEnv are the conventional variable names accepted without prefix.
var bareEnv = map[string]string{
	"oidc.issuer_url":    "OIDC_ISSUER_URL",
	"oidc.client_id":     "OIDC_CLIENT_ID",
	"oidc.client_secret": "OIDC_CLIENT_SECRET",
	"oidc.redirect_url":  "OIDC_REDIRECT_URL",
}

// TestProfile returns overrides that disable OIDC and supply placeholder
// issuer and client values. Protected routes answer 401 deterministically
// under it.
func TestProfile() map[string]any {
	return map[string]any{
		"oidc.enabled":       false,
		"oidc.issuer_url":    "https://example.com",
		"oidc.client_id":     "test-client-id",
		"oidc.client_secret": "test-secret",
	}
}

// Load reads the configuration. configPath may be empty, in which case
// ./config.yaml and ./config/config.yaml are tried. overrides win over every
// other source.
func Load(configPath string, overrides map[string]any) (*AppConfig, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("oidc.enabled", true)
	v.SetDefault("oidc.user_name_claim", "sub")
	v.SetDefault("oidc.scopes", []string{"openid", "profile", "email"})
	v.SetDefault("oidc.session_cookie", oidcauth.DefaultSessionCookieName)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		if bare, ok := bareEnv[k]; ok {
			_ = v.BindEnv(k, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(k, ".", "_")), bare)
			continue
		}
		_ = v.BindEnv(k)
	}

	for k, val := range overrides {
		v.Set(k, val)
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *AppConfig) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	switch cfg.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %q", cfg.Log.Format)
	}

	if !cfg.OIDC.Enabled {
		return nil
	}

	if cfg.OIDC.IssuerURL == "" {
		return fmt.Errorf("oidc issuer url is required (set OIDC_ISSUER_URL)")
	}
	u, err := url.Parse(cfg.OIDC.IssuerURL)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("oidc issuer url must be an https url: %q", cfg.OIDC.IssuerURL)
	}
	if cfg.OIDC.ClientID == "" {
		return fmt.Errorf("oidc client id is required (set OIDC_CLIENT_ID)")
	}
	if cfg.OIDC.RedirectURL != "" && cfg.OIDC.ClientSecret == "" {
		return fmt.Errorf("oidc client secret is required when redirect url is set (set OIDC_CLIENT_SECRET)")
	}

	return nil
}
