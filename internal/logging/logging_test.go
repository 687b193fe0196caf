package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := With(NewWithWriter(&buf, "production", "debug"), map[string]string{"component": "phoneauthd"})
	log.Debug().Str("op", "send_code").Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v: %s", err, buf.String())
	}
	if line["env"] != "production" || line["component"] != "phoneauthd" || line["op"] != "send_code" {
		t.Fatalf("unexpected fields: %v", line)
	}
}

func TestNewLevelFallback(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "production", "bogus")
	log.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug written at default level: %s", buf.String())
	}
	log.Info().Msg("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("info not written: %s", buf.String())
	}
}

func TestNewLocalIsConsole(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "local", "")
	log.Info().Msg("pretty")
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("local logger wrote JSON: %s", buf.String())
	}
}
