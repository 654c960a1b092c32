package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestNewLoggerInvalidLevel(t *testing.T) {
	cfg := LoggerConfig{Level: "loud"}
	if _, err := NewLogger(cfg); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestNewLoggerWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "image-compress.log")
	cfg := LoggerConfig{Level: "debug", FilePath: path, MaxSize: 1, Console: false}

	log, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	WithFileOperation(log, "photo.jpg", "compress").Info("Image compressed")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, data)
	}
	if entry["message"] != "Image compressed" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["file"] != "photo.jpg" || entry["operation"] != "compress" {
		t.Errorf("missing context fields: %v", entry)
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Errorf("missing timestamp field: %v", entry)
	}
}

func TestHelpersAttachFields(t *testing.T) {
	log := Discard()

	entry := WithFileOperation(log, "a.png", "decode")
	if entry.Data["file"] != "a.png" || entry.Data["operation"] != "decode" {
		t.Errorf("file operation fields = %v", entry.Data)
	}
	if got := WithBatch(log, "b-1").Data["batch"]; got != "b-1" {
		t.Errorf("batch = %v, want b-1", got)
	}
}
