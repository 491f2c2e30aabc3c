package internal

import (
	"strings"
	"testing"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Events.Redis.Enabled() {
		t.Error("redis relay should be off by default")
	}
	if got := cfg.Canvas.MarkerSize(); got.Width != 32 || got.Height != 32 {
		t.Errorf("marker size = %+v", got)
	}
}

func TestDocumentsConfig_Validation(t *testing.T) {
	cfg := DocumentsConfig{Path: "", Extensions: []string{".pdf"}}
	if err := cfg.Validate(); err == nil {
		t.Error("empty path should fail")
	}
	cfg = DocumentsConfig{Path: "./docs", Extensions: []string{""}}
	if err := cfg.Validate(); err == nil {
		t.Error("empty extension should fail")
	}
}

func TestRedisConfig_ChannelRequiredWhenEnabled(t *testing.T) {
	cfg := RedisConfig{URL: "redis://localhost:6379/0"}
	if err := cfg.Validate(); err == nil {
		t.Error("enabled relay without channel should fail")
	}
	cfg.Channel = "verba:events"
	if err := cfg.Validate(); err != nil {
		t.Errorf("enabled relay with channel: %v", err)
	}
	if !cfg.Enabled() {
		t.Error("relay with URL should be enabled")
	}
}

func TestEventsConfig_ClientBufferBounds(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Events.ClientBuffer = 100000
	if err := cfg.Validate(); err == nil {
		t.Error("oversized client buffer should fail")
	}
}

func TestCanvasConfig_RequiresPositiveMarker(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Canvas.MarkerWidth = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero marker width should fail")
	}
}
