// Package config loads server settings from flags, an optional YAML file
// and KULTURA_ environment variables (via viper), and provider credentials
// from the conventional Azure environment variables (via caarlos0/env).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for server settings in the environment.
const EnvPrefix = "KULTURA"

// Server holds settings for the listeners and engines.
type Server struct {
	Port               int
	GRPCPort           int
	LogLevel           string
	MTEngine           string
	ExtractEngine      string
	UpstreamTimeout    time.Duration
	Breaker            bool
	CacheSweepInterval time.Duration
	MaxUploadBytes     int64
}

// Providers holds external service endpoints and credentials.
type Providers struct {
	TranslatorEndpoint string `env:"AZURE_TRANSLATOR_ENDPOINT" envDefault:"https://api.cognitive.microsofttranslator.com"`
	TranslatorKey      string `env:"AZURE_TRANSLATOR_KEY"`
	TranslatorRegion   string `env:"AZURE_TRANSLATOR_REGION"`

	OpenAIEndpoint   string `env:"AZURE_OPENAI_ENDPOINT"`
	OpenAIKey        string `env:"AZURE_OPENAI_KEY"`
	OpenAIDeployment string `env:"AZURE_OPENAI_DEPLOYMENT"`
	OpenAIAPIVersion string `env:"AZURE_OPENAI_API_VERSION" envDefault:"2024-02-15-preview"`

	FormRecognizerEndpoint string `env:"AZURE_FORM_RECOGNIZER_ENDPOINT"`
	FormRecognizerKey      string `env:"AZURE_FORM_RECOGNIZER_KEY"`

	LibreTranslateURL string `env:"LIBRETRANSLATE_URL" envDefault:"http://localhost:5000"`
}

// Config is the complete process configuration.
type Config struct {
	Server    Server
	Providers Providers
}

// SetDefaults registers default values for every server key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", 3000)
	v.SetDefault("grpc-port", 50051)
	v.SetDefault("log-level", "info")
	v.SetDefault("mt-engine", "azure")
	v.SetDefault("extract-engine", "azure")
	v.SetDefault("upstream-timeout", 60*time.Second)
	v.SetDefault("breaker", true)
	v.SetDefault("cache-sweep-interval", time.Minute)
	v.SetDefault("max-upload-bytes", int64(32<<20))
}

// InitViper configures v to read cfgFile (if set) and the environment.
// A missing config file is not an error.
func InitViper(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile == "" {
		v.SetConfigName("kultura")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/kultura")
	} else {
		v.SetConfigFile(cfgFile)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load builds a Config from v and the process environment.
func Load(v *viper.Viper) (*Config, error) {
	return load(v, env.Options{})
}

// LoadFrom is Load with an explicit environment instead of the process one.
func LoadFrom(v *viper.Viper, environ map[string]string) (*Config, error) {
	return load(v, env.Options{Environment: environ})
}

func load(v *viper.Viper, opts env.Options) (*Config, error) {
	cfg := &Config{
		Server: Server{
			Port:               v.GetInt("port"),
			GRPCPort:           v.GetInt("grpc-port"),
			LogLevel:           v.GetString("log-level"),
			MTEngine:           strings.ToLower(v.GetString("mt-engine")),
			ExtractEngine:      strings.ToLower(v.GetString("extract-engine")),
			UpstreamTimeout:    v.GetDuration("upstream-timeout"),
			Breaker:            v.GetBool("breaker"),
			CacheSweepInterval: v.GetDuration("cache-sweep-interval"),
			MaxUploadBytes:     v.GetInt64("max-upload-bytes"),
		},
	}

	if err := env.ParseWithOptions(&cfg.Providers, opts); err != nil {
		return nil, fmt.Errorf("parse provider environment: %w", err)
	}
	return cfg, nil
}

// Validate reports every missing setting for the selected engines.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("port must be positive"))
	}
	if c.Server.UpstreamTimeout <= 0 {
		errs = append(errs, fmt.Errorf("upstream-timeout must be positive"))
	}
	if c.Server.CacheSweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("cache-sweep-interval must be positive"))
	}

	p := c.Providers
	switch c.Server.MTEngine {
	case "azure":
		if p.TranslatorKey == "" {
			errs = append(errs, fmt.Errorf("AZURE_TRANSLATOR_KEY is required for the azure translation engine"))
		}
	case "libretranslate":
		if p.LibreTranslateURL == "" {
			errs = append(errs, fmt.Errorf("LIBRETRANSLATE_URL is required for the libretranslate engine"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mt-engine %q", c.Server.MTEngine))
	}

	switch c.Server.ExtractEngine {
	case "azure":
		if p.FormRecognizerEndpoint == "" || p.FormRecognizerKey == "" {
			errs = append(errs, fmt.Errorf("AZURE_FORM_RECOGNIZER_ENDPOINT and AZURE_FORM_RECOGNIZER_KEY are required for the azure extract engine"))
		}
	case "local":
	default:
		errs = append(errs, fmt.Errorf("unknown extract-engine %q", c.Server.ExtractEngine))
	}

	if p.OpenAIEndpoint == "" || p.OpenAIKey == "" || p.OpenAIDeployment == "" {
		errs = append(errs, fmt.Errorf("AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_KEY and AZURE_OPENAI_DEPLOYMENT are required"))
	}

	return errors.Join(errs...)
}
