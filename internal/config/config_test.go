package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Presence.HeartbeatInterval != 7*time.Second {
		t.Errorf("expected 7s heartbeat, got %v", cfg.Presence.HeartbeatInterval)
	}
	if cfg.Presence.RetryInterval != 5*time.Second {
		t.Errorf("expected 5s retry, got %v", cfg.Presence.RetryInterval)
	}
	if cfg.Presence.SnapshotTimeout != 3*time.Second {
		t.Errorf("expected 3s snapshot timeout, got %v", cfg.Presence.SnapshotTimeout)
	}
	if cfg.Presence.SubscribeRate != 60 {
		t.Errorf("expected 60/min, got %d", cfg.Presence.SubscribeRate)
	}
	if cfg.JWT.AccessTokenExpiry != 15*time.Minute {
		t.Errorf("expected 15m access expiry, got %v", cfg.JWT.AccessTokenExpiry)
	}
}

func TestLoad_HeartbeatOverride(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"2500", 2500 * time.Millisecond},
		{"abc", 7 * time.Second},
		{"0", 7 * time.Second},
		{"-100", 7 * time.Second},
		{" 1000 ", time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("PRESENCE_HEARTBEAT_MS", tt.value)
			if got := Load().Presence.HeartbeatInterval; got != tt.want {
				t.Errorf("PRESENCE_HEARTBEAT_MS=%q: expected %v, got %v", tt.value, tt.want, got)
			}
		})
	}
}

func TestLoad_CORSOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	got := Load().CORS.AllowedOrigins
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("unexpected origins %v", got)
	}
}

func TestDatabaseConfig_DSNAndURL(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "app", Password: "pw", DBName: "presence", SSLMode: "disable"}

	if got := d.DSN(); got != "host=db port=5432 user=app password=pw dbname=presence sslmode=disable" {
		t.Errorf("unexpected DSN %q", got)
	}
	if got := d.URL(); got != "postgres://app:pw@db:5432/presence?sslmode=disable" {
		t.Errorf("unexpected URL %q", got)
	}
}
