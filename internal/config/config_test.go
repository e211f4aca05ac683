package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netsync.toml")
	body := `
[session]
identity = 76561198000000001
tick_rate = "20ms"
loading_timeout = "5s"

[network]
transport = "websocket"

[store]
driver = "memory"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.Identity != 76561198000000001 {
		t.Fatalf("identity = %d", cfg.Session.Identity)
	}
	if cfg.Session.TickRate != 20*time.Millisecond || cfg.Session.LoadingTimeout != 5*time.Second {
		t.Fatalf("durations = %s %s", cfg.Session.TickRate, cfg.Session.LoadingTimeout)
	}
	if cfg.Network.Transport != "websocket" || cfg.Store.Driver != "memory" {
		t.Fatalf("transport=%s driver=%s", cfg.Network.Transport, cfg.Store.Driver)
	}
	if cfg.Session.MaxMessagesPerTick != 64 || cfg.Admission.Policy != "accept_all" {
		t.Fatal("untouched sections should keep defaults")
	}
}

func TestParseRejectsUnknownValues(t *testing.T) {
	cases := map[string]string{
		"transport": "[network]\ntransport = \"carrier-pigeon\"\n",
		"policy":    "[admission]\npolicy = \"vibes\"\n",
		"password":  "[admission]\npolicy = \"password\"\n",
		"driver":    "[store]\ndriver = \"floppy\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(body)); err == nil || !strings.Contains(err.Error(), name) {
				t.Fatalf("err = %v, want mention of %q", err, name)
			}
		})
	}
}
