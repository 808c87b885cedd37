package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelDebug, Output: &buf, JSON: true})
	if logger == nil {
		t.Fatal("New logger should not be nil")
	}

	t.Run("Levels", func(t *testing.T) {
		for _, msg := range []string{"debug msg", "info msg", "warn msg", "error msg"} {
			buf.Reset()
			switch msg {
			case "debug msg":
				logger.Debug(msg)
			case "info msg":
				logger.Info(msg)
			case "warn msg":
				logger.Warn(msg)
			default:
				logger.Error(msg)
			}
			if !strings.Contains(buf.String(), msg) {
				t.Errorf("expected %q in output, got %q", msg, buf.String())
			}
		}
	})

	t.Run("DynamicLevel", func(t *testing.T) {
		logger.SetLevel(LevelError)
		defer logger.SetLevel(LevelDebug)
		if logger.GetLevel() != LevelError {
			t.Error("SetLevel failed")
		}

		buf.Reset()
		logger.Info("should not appear")
		if buf.Len() > 0 {
			t.Error("logged info message when level was Error")
		}
	})

	t.Run("WithComponent", func(t *testing.T) {
		buf.Reset()
		logger.WithComponent("vlan").Info("msg")
		if !strings.Contains(buf.String(), `"component":"vlan"`) {
			t.Errorf("WithComponent missing component field: %s", buf.String())
		}
	})

	t.Run("WithFields", func(t *testing.T) {
		buf.Reset()
		logger.WithFields(map[string]any{"zone": "srv"}).Info("msg")
		if !strings.Contains(buf.String(), `"zone":"srv"`) {
			t.Error("WithFields missing fields")
		}
	})

	t.Run("Audit", func(t *testing.T) {
		buf.Reset()
		logger.Audit("create", "vlan:210", map[string]any{"zone": "srv"})
		logStr := buf.String()
		if !strings.Contains(logStr, "AUDIT") {
			t.Error("audit log missing AUDIT message")
		}
		if !strings.Contains(logStr, "vlan:210") {
			t.Error("audit log missing resource")
		}
	})
}

func TestConsoleHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Output: &buf})

	logger.WithComponent("DHCP").Info("created range", "zone", "srv", "desc", "srv DHCP")

	line := buf.String()
	if !strings.Contains(line, "zonectl[") {
		t.Errorf("missing process prefix: %q", line)
	}
	if !strings.Contains(line, "[info] dhcp: created range") {
		t.Errorf("missing level/component header: %q", line)
	}
	if !strings.Contains(line, `desc="srv DHCP"`) {
		t.Errorf("values with spaces should be quoted: %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Errorf("component should be promoted to the header: %q", line)
	}
}

func TestDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf
	SetDefault(New(cfg))
	defer SetDefault(nil)

	Default().Debug("debug")
	Default().WithComponent("comp").Info("comp msg")
	slog.Warn("through slog")

	if !strings.Contains(buf.String(), "comp: comp msg") {
		t.Errorf("default logger missed output: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "through slog") {
		t.Error("SetDefault should also install the slog default")
	}
	if strings.Contains(buf.String(), "] debug") {
		t.Error("debug should be filtered at the default level")
	}
}

func TestAudit_SortedDetails(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf})
	l.Audit("create", "vlan", map[string]any{"zone": "srv", "dry_run": false, "tag": 210})

	line := buf.String()
	if !strings.Contains(line, "AUDIT audit=true action=create resource=vlan dry_run=false tag=210 zone=srv") {
		t.Errorf("unexpected audit line: %q", line)
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error("dropped")
	l.Audit("delete", "rule", nil)
}

func TestJSONLogParsing(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf, JSON: true})

	l.Info("json test", "key", "value")

	var data map[string]any
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("failed to parse JSON log: %v", err)
	}
	if data["msg"] != "json test" {
		t.Error("JSON msg field incorrect")
	}
	if data["key"] != "value" {
		t.Error("JSON extra field incorrect")
	}
	if data["level"] != "INFO" {
		t.Error("JSON level incorrect")
	}
}
