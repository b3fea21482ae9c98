package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "SHUTDOWN_TIMEOUT", "SPEECH_UPSTREAM_URL", "SPEECH_TRANSCRIPT_PATH", "SPEECH_DEBATE_PATH",
		"SPEECH_API_KEY", "SPEECH_DIAL_TIMEOUT", "SPEECH_WRITE_TIMEOUT", "SPEECH_BUFFER_LIMIT", "SPEECH_ENABLED",
		"WS_SEND_BUFFER", "WS_READ_LIMIT", "WS_PING_PERIOD", "WS_PONG_WAIT", "EVENT_RATE_LIMIT",
		"EVENT_RATE_INTERVAL", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":5000" {
		t.Fatalf("expected :5000, got %s", cfg.Server.Addr)
	}
	if cfg.Speech.TranscriptPath != "/ws/transcript" || cfg.Speech.DebatePath != "/ws/debate" {
		t.Fatalf("unexpected routes %+v", cfg.Speech)
	}
	if cfg.Speech.BufferLimit != 960000 {
		t.Fatalf("expected default buffer limit, got %d", cfg.Speech.BufferLimit)
	}
	if !cfg.Speech.Enabled {
		t.Fatal("expected speech enabled by default")
	}
	if cfg.Realtime.PongWait != 60*time.Second || cfg.Realtime.EventRateInterval != time.Second {
		t.Fatalf("unexpected realtime defaults %+v", cfg.Realtime)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "console" {
		t.Fatalf("unexpected log defaults %+v", cfg.Log)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("SPEECH_UPSTREAM_URL", "wss://asr.example.com")
	t.Setenv("SPEECH_API_KEY", " key ")
	t.Setenv("SPEECH_DIAL_TIMEOUT", "1500ms")
	t.Setenv("SPEECH_WRITE_TIMEOUT", "3")
	t.Setenv("SPEECH_BUFFER_LIMIT", "0")
	t.Setenv("SPEECH_ENABLED", "false")
	t.Setenv("EVENT_RATE_LIMIT", "5")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr %s", cfg.Server.Addr)
	}
	if cfg.Speech.UpstreamURL != "wss://asr.example.com" || cfg.Speech.APIKey != "key" {
		t.Fatalf("unexpected speech config %+v", cfg.Speech)
	}
	if cfg.Speech.DialTimeout != 1500*time.Millisecond || cfg.Speech.WriteTimeout != 3*time.Second {
		t.Fatalf("unexpected timeouts %s %s", cfg.Speech.DialTimeout, cfg.Speech.WriteTimeout)
	}
	if cfg.Speech.BufferLimit != 0 || cfg.Speech.Enabled {
		t.Fatalf("unexpected speech flags %+v", cfg.Speech)
	}
	if cfg.Realtime.EventRateLimit != 5 {
		t.Fatalf("unexpected rate limit %d", cfg.Realtime.EventRateLimit)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected log config %+v", cfg.Log)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":                "80 80",
		"SPEECH_DIAL_TIMEOUT": "soon",
		"SPEECH_BUFFER_LIMIT": "-1",
		"SPEECH_ENABLED":      "maybe",
		"WS_SEND_BUFFER":      "0",
		"WS_PING_PERIOD":      "2m",
		"LOG_LEVEL":           "verbose",
		"LOG_FORMAT":          "xml",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}
