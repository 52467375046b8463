package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Dispatch.SMSWorkers != 8 {
		t.Errorf("expected 8 sms workers, got %d", cfg.Dispatch.SMSWorkers)
	}
	if cfg.Providers.SMS.Timeout != 10*time.Second {
		t.Errorf("expected 10s sms timeout, got %v", cfg.Providers.SMS.Timeout)
	}
	if cfg.Expiry.SweepInterval != time.Minute {
		t.Errorf("expected 1m sweep interval, got %v", cfg.Expiry.SweepInterval)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected info log level, got %s", cfg.Logging.Level)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DISPATCH_PUSH_WORKERS", "16")
	t.Setenv("SMS_TIMEOUT", "3s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Dispatch.PushWorkers != 16 {
		t.Errorf("expected 16 push workers, got %d", cfg.Dispatch.PushWorkers)
	}
	if cfg.Providers.SMS.Timeout != 3*time.Second {
		t.Errorf("expected 3s sms timeout, got %v", cfg.Providers.SMS.Timeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug log level, got %s", cfg.Logging.Level)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")
	t.Setenv("EMAIL_TIMEOUT", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("unparseable port should fall back to 8080, got %d", cfg.Server.Port)
	}
	if cfg.Providers.Email.Timeout != 15*time.Second {
		t.Errorf("unparseable duration should fall back to 15s, got %v", cfg.Providers.Email.Timeout)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port_too_high", "SERVER_PORT", "70000"},
		{"port_zero", "SERVER_PORT", "0"},
		{"bad_log_level", "LOG_LEVEL", "verbose"},
		{"zero_workers", "DISPATCH_SMS_WORKERS", "0"},
		{"zero_buffer", "DISPATCH_BUFFER_SIZE", "0"},
		{"sweep_too_short", "EXPIRY_SWEEP_INTERVAL", "100ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected validation error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestDispatchConfig_Workers(t *testing.T) {
	d := DispatchConfig{SMSWorkers: 3, PushWorkers: 4, EmailWorkers: 5, WebWorkers: 6}

	if got := d.Workers("sms"); got != 3 {
		t.Errorf("sms workers = %d, want 3", got)
	}
	if got := d.Workers("web"); got != 6 {
		t.Errorf("web workers = %d, want 6", got)
	}
	if got := d.Workers("pigeon"); got != 1 {
		t.Errorf("unknown channel should fall back to 1 worker, got %d", got)
	}
}
