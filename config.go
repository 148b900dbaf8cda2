package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/go-authgate/boxsession/oauthapi"
)

const defaultTokenFile = ".box-session.json"

// command is the action selected on the command line.
type command int

const (
	cmdLogin command = iota
	cmdList
	cmdLogout
	cmdLogoutAll
)

// Config is the resolved CLI configuration.
type Config struct {
	ServerURL    string `yaml:"server_url"    validate:"omitempty,url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"  validate:"omitempty,url"`
	TokenFile    string `yaml:"token_file"`
	Passphrase   string `yaml:"passphrase"`
	Debug        bool   `yaml:"debug"`

	// Set from flags only.
	Code    string  `yaml:"-"`
	User    string  `yaml:"-"`
	Command command `yaml:"-"`
}

// Endpoints returns the Box endpoints, or endpoints derived from ServerURL
// when one is configured.
func (c *Config) Endpoints() oauthapi.Endpoints {
	if c.ServerURL == "" {
		return oauthapi.DefaultEndpoints()
	}
	return oauthapi.EndpointsFromBase(c.ServerURL)
}

// Credentials returns the configured client credentials.
func (c *Config) Credentials() oauthapi.Credentials {
	return oauthapi.Credentials{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
	}
}

// loadConfig resolves the configuration.
// Priority: flag > env > config file > default.
func loadConfig(args []string, stderr io.Writer) (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	fs := flag.NewFlagSet("boxsession", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configFile := fs.String("config", "", "YAML config file (or BOX_CONFIG env)")
	serverURL := fs.String("server-url", "", "Box server base URL (default: production Box, or BOX_SERVER_URL env)")
	clientID := fs.String("client-id", "", "OAuth client ID (or BOX_CLIENT_ID env)")
	clientSecret := fs.String("client-secret", "", "OAuth client secret (or BOX_CLIENT_SECRET env)")
	redirectURL := fs.String("redirect-url", "", "OAuth redirect URL (or BOX_REDIRECT_URL env)")
	tokenFile := fs.String("token-file", "", "Credential file (default: "+defaultTokenFile+", or BOX_TOKEN_FILE env)")
	passphrase := fs.String("passphrase", "", "Seal the credential file with a passphrase (or BOX_PASSPHRASE env)")
	code := fs.String("code", "", "Authorization code returned by the Box login page")
	user := fs.String("user", "", "User ID to act on (default: last authenticated user)")
	list := fs.Bool("list", false, "List stored users")
	logout := fs.Bool("logout", false, "Log the user out and revoke the token")
	logoutAll := fs.Bool("logout-all", false, "Log every stored user out")
	debug := fs.Bool("debug", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	fileCfg := &Config{}
	if path := getConfig(*configFile, "BOX_CONFIG", ""); path != "" {
		loaded, err := loadConfigFile(path)
		if err != nil {
			return nil, err
		}
		fileCfg = loaded
	}

	cfg := &Config{
		ServerURL:    getConfig(*serverURL, "BOX_SERVER_URL", fileCfg.ServerURL),
		ClientID:     getConfig(*clientID, "BOX_CLIENT_ID", fileCfg.ClientID),
		ClientSecret: getConfig(*clientSecret, "BOX_CLIENT_SECRET", fileCfg.ClientSecret),
		RedirectURL:  getConfig(*redirectURL, "BOX_REDIRECT_URL", fileCfg.RedirectURL),
		TokenFile:    getConfig(*tokenFile, "BOX_TOKEN_FILE", fileCfg.TokenFile),
		Passphrase:   getConfig(*passphrase, "BOX_PASSPHRASE", fileCfg.Passphrase),
		Debug:        *debug || fileCfg.Debug || os.Getenv("BOX_DEBUG") == "true",
		Code:         *code,
		User:         *user,
	}
	if cfg.TokenFile == "" {
		cfg.TokenFile = defaultTokenFile
	}

	switch {
	case *logoutAll:
		cfg.Command = cmdLogoutAll
	case *logout:
		cfg.Command = cmdLogout
	case *list:
		cfg.Command = cmdList
	default:
		cfg.Command = cmdLogin
	}

	if cfg.ServerURL != "" {
		if err := validateServerURL(cfg.ServerURL); err != nil {
			return nil, fmt.Errorf("invalid server URL: %w", err)
		}
		// Warn if using HTTP instead of HTTPS
		if strings.HasPrefix(strings.ToLower(cfg.ServerURL), "http://") {
			fmt.Fprintln(
				stderr,
				"⚠️  WARNING: Using HTTP instead of HTTPS. Tokens will be transmitted in plaintext!",
			)
			fmt.Fprintln(stderr)
		}
	}

	return cfg, nil
}

// loadConfigFile reads a YAML config. Environment variables in the file are
// expanded before decoding.
func loadConfigFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(content))

	cfg := new(Config)
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}

	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("yaml")
	})
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config file: %w", err)
	}

	// A relative token file is relative to the config file.
	if cfg.TokenFile != "" && !filepath.IsAbs(cfg.TokenFile) {
		cfg.TokenFile = filepath.Join(filepath.Dir(path), cfg.TokenFile)
	}
	return cfg, nil
}

// getConfig returns value with priority: flag > env > default
func getConfig(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return getEnv(envKey, defaultValue)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// validateServerURL validates that the server URL is properly formatted
func validateServerURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("server URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must include a host")
	}

	return nil
}
