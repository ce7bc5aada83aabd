package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PARSER_MODE", "")
	t.Setenv("PARSE_POLL_INTERVAL", "")
	t.Setenv("PARSE_MAX_POLL_ATTEMPTS", "")
	t.Setenv("PARSE_SKIP_MIME_PREFIXES", "")

	cfg := Load()
	if cfg.ParserMode != "local" {
		t.Fatalf("expected default parser mode local, got %q", cfg.ParserMode)
	}
	if cfg.ParsePollInterval != 2*time.Second {
		t.Fatalf("expected default poll interval 2s, got %s", cfg.ParsePollInterval)
	}
	if cfg.ParseMaxAttempts != 30 {
		t.Fatalf("expected default max poll attempts 30, got %d", cfg.ParseMaxAttempts)
	}
	if len(cfg.SkipMimePrefixes) != 1 || cfg.SkipMimePrefixes[0] != "image/" {
		t.Fatalf("expected default skip prefixes [image/], got %v", cfg.SkipMimePrefixes)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("PARSER_MODE", "remote")
	t.Setenv("PARSER_SUBMIT_RPS", "2.5")
	t.Setenv("PARSE_POLL_INTERVAL", "500ms")
	t.Setenv("PARSE_SKIP_MIME_PREFIXES", "image/, video/ ,audio/")

	cfg := Load()
	if cfg.ParserMode != "remote" {
		t.Fatalf("expected parser mode override, got %q", cfg.ParserMode)
	}
	if cfg.ParserSubmitRPS != 2.5 {
		t.Fatalf("expected submit rps 2.5, got %v", cfg.ParserSubmitRPS)
	}
	if cfg.ParsePollInterval != 500*time.Millisecond {
		t.Fatalf("expected poll interval 500ms, got %s", cfg.ParsePollInterval)
	}
	want := []string{"image/", "video/", "audio/"}
	if len(cfg.SkipMimePrefixes) != len(want) {
		t.Fatalf("expected skip prefixes %v, got %v", want, cfg.SkipMimePrefixes)
	}
	for i := range want {
		if cfg.SkipMimePrefixes[i] != want[i] {
			t.Fatalf("expected skip prefixes %v, got %v", want, cfg.SkipMimePrefixes)
		}
	}
}

func TestLoadFallsBackOnBadValues(t *testing.T) {
	t.Setenv("PARSE_MAX_POLL_ATTEMPTS", "lots")
	t.Setenv("PARSE_POLL_INTERVAL", "soon")

	cfg := Load()
	if cfg.ParseMaxAttempts != 30 {
		t.Fatalf("expected fallback max poll attempts 30, got %d", cfg.ParseMaxAttempts)
	}
	if cfg.ParsePollInterval != 2*time.Second {
		t.Fatalf("expected fallback poll interval 2s, got %s", cfg.ParsePollInterval)
	}
}
