package metrics

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeJSONLine(t *testing.T, b []byte) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(b, &entry); err != nil {
		t.Fatalf("failed to parse JSON %q: %v", b, err)
	}
	return entry
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"DEBUG", LevelDebug},
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"WARNING", LevelWarn},
		{"ERROR", LevelError},
		{"off", LevelSilent},
		{"invalid", LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, expected %v", tt.input, got, tt.expected)
		}
		if got := ParseLevel(tt.expected.String()); got != tt.expected {
			t.Errorf("ParseLevel(%q) did not round trip", tt.expected.String())
		}
	}
}

func TestParseFormat(t *testing.T) {
	if ParseFormat("JSON") != FormatJSON {
		t.Error("JSON not recognised")
	}
	if ParseFormat("text") != FormatText || ParseFormat("") != FormatText {
		t.Error("text is not the default")
	}
}

func TestLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf), WithLevel(LevelDebug), WithFormat(FormatText))

	logger.Info("share created", Fields{"share_id": "abc"})

	output := buf.String()
	for _, want := range []string{"INFO", "share created", "share_id=abc"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in %q", want, output)
		}
	}
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf), WithLevel(LevelDebug), WithFormat(FormatJSON))

	logger.Warn("kem fallback", Fields{"reason": errors.New("unavailable")})

	entry := decodeJSONLine(t, buf.Bytes())
	if entry["level"] != "WARN" {
		t.Errorf("expected level WARN, got %v", entry["level"])
	}
	if entry["msg"] != "kem fallback" {
		t.Errorf("unexpected msg %v", entry["msg"])
	}
	if entry["reason"] != "unavailable" {
		t.Errorf("error field not rendered as string: %v", entry["reason"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected time field")
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf), WithLevel(LevelWarn))

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Error("messages below WARN were written")
	}
	if !strings.Contains(output, "warn message") || !strings.Contains(output, "error message") {
		t.Error("messages at or above WARN are missing")
	}
}

func TestLoggerSilentLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf), WithLevel(LevelSilent))

	logger.Error("error")
	if buf.Len() > 0 {
		t.Error("expected no output with silent level")
	}
}

func TestLoggerWithAndNamed(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(
		WithOutput(&buf),
		WithFormat(FormatJSON),
		WithFields(Fields{"service": "pqshare"}),
		WithName("share"),
	)

	logger.With(Fields{"owner": "u1"}).Named("redeem").Info("ok", Fields{"n": 1})

	entry := decodeJSONLine(t, buf.Bytes())
	if entry["service"] != "pqshare" || entry["owner"] != "u1" {
		t.Errorf("fields lost: %v", entry)
	}
	if entry["logger"] != "share.redeem" {
		t.Errorf("expected logger share.redeem, got %v", entry["logger"])
	}
	if entry["n"] != float64(1) {
		t.Errorf("expected n=1, got %v", entry["n"])
	}
}

func TestLoggerSetLevelSharedWithChildren(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf), WithLevel(LevelError))
	child := logger.Named("child")

	child.Info("hidden")
	if buf.Len() > 0 {
		t.Fatal("info should be filtered")
	}

	logger.SetLevel(LevelInfo)
	child.Info("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("child did not follow the parent's level")
	}
}

func TestLoggerTextFieldOrder(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf))

	logger.Info("test", Fields{"zebra": "1", "apple": "2", "mango": "3"})

	output := buf.String()
	a, m, z := strings.Index(output, "apple="), strings.Index(output, "mango="), strings.Index(output, "zebra=")
	if a > m || m > z {
		t.Errorf("fields not sorted: %q", output)
	}
}

func TestGlobalLogger(t *testing.T) {
	prev := GetLogger()
	defer SetLogger(prev)

	var buf bytes.Buffer
	SetLogger(TestLogger(&buf))
	Info("global test")
	Warn("global warn")

	if !strings.Contains(buf.String(), "global test") || !strings.Contains(buf.String(), "global warn") {
		t.Error("expected messages from global logger")
	}

	NullLogger().Error("discarded")
}

func TestLoggerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf), WithFormat(FormatJSON), WithFields(Fields{"master_key": "hunter2hunter2hunter2"}))

	logger.Info("redeem", Fields{
		"Password": "correct horse",
		"link_key": "c2VjcmV0",
		"payload":  []byte("plaintext"),
		"share_id": "abc",
	})

	out := buf.String()
	for _, leak := range []string{"hunter2", "correct horse", "c2VjcmV0", "plaintext"} {
		if strings.Contains(out, leak) {
			t.Errorf("secret %q leaked into %s", leak, out)
		}
	}
	entry := decodeJSONLine(t, buf.Bytes())
	if entry["Password"] != Redacted || entry["master_key"] != Redacted {
		t.Errorf("secrets not redacted: %v", entry)
	}
	if entry["payload_len"] != float64(9) || entry["share_id"] != "abc" {
		t.Errorf("unexpected fields: %v", entry)
	}
}
