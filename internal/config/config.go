// Package config loads batchplane settings from an optional YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string
	DatabaseURL string

	// Logging
	LogLevel  string
	LogFormat string
	// LogDir receives one batch.log per execution; empty disables it.
	LogDir string

	// Observability
	OTELEndpoint   string
	PushgatewayURL string

	// How often a running job polls for stop requests
	StopPollInterval time.Duration

	// Runtimes
	RuntimeWorkDir           string
	KubernetesNamespace      string
	KubernetesServiceAccount string
	KubernetesCPULimit       string
	KubernetesMemoryLimit    string

	// Notifications
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPTLS      bool
	MailFrom     string
	WebhookURL   string
	NATSURL      string
	NATSSubject  string
}

// Load reads configuration from path (or ./batchplane.yaml when path is
// empty and the file exists), then applies environment overrides. Keys map
// to upper-case environment variables: database_url reads DATABASE_URL.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("stop_poll_interval", "2s")
	v.SetDefault("kubernetes_namespace", "default")
	v.SetDefault("kubernetes_cpu_limit", "500m")
	v.SetDefault("kubernetes_memory_limit", "256Mi")
	v.SetDefault("smtp_port", 587)
	v.SetDefault("nats_subject", "batchplane.executions.finished")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("batchplane")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{
		DatabaseURL:              v.GetString("database_url"),
		LogLevel:                 v.GetString("log_level"),
		LogFormat:                strings.ToLower(v.GetString("log_format")),
		LogDir:                   v.GetString("log_dir"),
		OTELEndpoint:             v.GetString("otel_endpoint"),
		PushgatewayURL:           v.GetString("pushgateway_url"),
		StopPollInterval:         v.GetDuration("stop_poll_interval"),
		RuntimeWorkDir:           v.GetString("runtime_workdir"),
		KubernetesNamespace:      v.GetString("kubernetes_namespace"),
		KubernetesServiceAccount: v.GetString("kubernetes_service_account"),
		KubernetesCPULimit:       v.GetString("kubernetes_cpu_limit"),
		KubernetesMemoryLimit:    v.GetString("kubernetes_memory_limit"),
		SMTPHost:                 v.GetString("smtp_host"),
		SMTPPort:                 v.GetInt("smtp_port"),
		SMTPUsername:             v.GetString("smtp_username"),
		SMTPPassword:             v.GetString("smtp_password"),
		SMTPTLS:                  v.GetBool("smtp_tls"),
		MailFrom:                 v.GetString("mail_from"),
		WebhookURL:               v.GetString("webhook_url"),
		NATSURL:                  v.GetString("nats_url"),
		NATSSubject:              v.GetString("nats_subject"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database_url is required (env: DATABASE_URL)")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log_format %q: must be text or json", c.LogFormat)
	}
	if c.StopPollInterval <= 0 {
		return fmt.Errorf("invalid stop_poll_interval %v: must be positive", c.StopPollInterval)
	}
	if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
		return fmt.Errorf("invalid smtp_port %d", c.SMTPPort)
	}
	return nil
}
