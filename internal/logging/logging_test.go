package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/artemshloyda/photovault/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{" warn ", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("info", config.LogFormatJSON, &buf)
	if err != nil {
		t.Fatal(err)
	}

	logger.Debug("hidden")
	logger.Info("saved", "image_id", int64(42))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if rec["msg"] != "saved" || rec["image_id"] != float64(42) {
		t.Errorf("record = %v", rec)
	}
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("debug", config.LogFormatText, &buf)
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("visible", "path", "/data/1.jpg")

	if !strings.Contains(buf.String(), "path=/data/1.jpg") {
		t.Errorf("output = %q, want key=value attribute", buf.String())
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New("loud", config.LogFormatText, &bytes.Buffer{}); err == nil {
		t.Error("New() with bad level should fail")
	}
	if _, err := New("info", config.LogFormat("xml"), &bytes.Buffer{}); err == nil {
		t.Error("New() with bad format should fail")
	}
}
