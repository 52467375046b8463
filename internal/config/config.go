package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Dispatch  DispatchConfig
	Providers ProvidersConfig
	Expiry    ExpiryConfig
	DB        DatabaseConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host      string
	Port      int
	RateLimit int // requests per second, global
}

// DispatchConfig sizes the per-channel worker pools. Each channel gets its
// own pool so a slow provider cannot starve the others.
type DispatchConfig struct {
	SMSWorkers   int
	PushWorkers  int
	EmailWorkers int
	WebWorkers   int
	BufferSize   int
}

type ProvidersConfig struct {
	SMS   SMSProviderConfig
	Push  PushProviderConfig
	Email EmailProviderConfig
}

type SMSProviderConfig struct {
	GatewayURL string
	APIKey     string
	SenderID   string
	Timeout    time.Duration
}

type PushProviderConfig struct {
	URL       string
	ServerKey string
	Timeout   time.Duration
}

type EmailProviderConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

type ExpiryConfig struct {
	SweepInterval time.Duration
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:      getEnv("SERVER_HOST", "localhost"),
			Port:      getEnvInt("SERVER_PORT", 8080),
			RateLimit: getEnvInt("SERVER_RATE_LIMIT", 25),
		},
		Dispatch: DispatchConfig{
			SMSWorkers:   getEnvInt("DISPATCH_SMS_WORKERS", 8),
			PushWorkers:  getEnvInt("DISPATCH_PUSH_WORKERS", 8),
			EmailWorkers: getEnvInt("DISPATCH_EMAIL_WORKERS", 4),
			WebWorkers:   getEnvInt("DISPATCH_WEB_WORKERS", 2),
			BufferSize:   getEnvInt("DISPATCH_BUFFER_SIZE", 256),
		},
		Providers: ProvidersConfig{
			SMS: SMSProviderConfig{
				GatewayURL: getEnv("SMS_GATEWAY_URL", "https://api.sms-gateway.example/v1/messages"),
				APIKey:     getEnv("SMS_API_KEY", ""),
				SenderID:   getEnv("SMS_SENDER_ID", "RDA-ALERT"),
				Timeout:    getEnvDuration("SMS_TIMEOUT", 10*time.Second),
			},
			Push: PushProviderConfig{
				URL:       getEnv("PUSH_URL", "https://fcm.googleapis.com/fcm/send"),
				ServerKey: getEnv("PUSH_SERVER_KEY", ""),
				Timeout:   getEnvDuration("PUSH_TIMEOUT", 10*time.Second),
			},
			Email: EmailProviderConfig{
				Host:     getEnv("EMAIL_HOST", "localhost"),
				Port:     getEnvInt("EMAIL_PORT", 587),
				Username: getEnv("EMAIL_USERNAME", ""),
				Password: getEnv("EMAIL_PASSWORD", ""),
				From:     getEnv("EMAIL_FROM", "alerts@rda.example"),
				Timeout:  getEnvDuration("EMAIL_TIMEOUT", 15*time.Second),
			},
		},
		Expiry: ExpiryConfig{
			SweepInterval: getEnvDuration("EXPIRY_SWEEP_INTERVAL", time.Minute),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/alert-engine.db"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	for name, n := range map[string]int{
		"sms":   c.Dispatch.SMSWorkers,
		"push":  c.Dispatch.PushWorkers,
		"email": c.Dispatch.EmailWorkers,
		"web":   c.Dispatch.WebWorkers,
	} {
		if n < 1 {
			return fmt.Errorf("%s worker count must be at least 1", name)
		}
	}
	if c.Dispatch.BufferSize < 1 {
		return fmt.Errorf("dispatch buffer size must be at least 1")
	}

	for name, d := range map[string]time.Duration{
		"SMS":   c.Providers.SMS.Timeout,
		"push":  c.Providers.Push.Timeout,
		"email": c.Providers.Email.Timeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s provider timeout must be positive", name)
		}
	}

	if c.Expiry.SweepInterval < time.Second {
		return fmt.Errorf("expiry sweep interval must be at least 1 second")
	}

	return nil
}

// Workers returns the pool size configured for the given channel name.
func (d DispatchConfig) Workers(channel string) int {
	switch channel {
	case "sms":
		return d.SMSWorkers
	case "push":
		return d.PushWorkers
	case "email":
		return d.EmailWorkers
	case "web":
		return d.WebWorkers
	}
	return 1
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
