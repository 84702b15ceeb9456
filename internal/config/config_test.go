package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTOML(t *testing.T, data string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "drode.toml")
	if err := os.WriteFile(file, []byte(data), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	return file
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DRODE_DATA_DIR", "/tmp/drode-test")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:17390" {
		t.Fatalf("listen: %q", cfg.Server.Listen)
	}
	if cfg.Process.GracePeriod != 100*time.Millisecond {
		t.Fatalf("grace: %v", cfg.Process.GracePeriod)
	}
	if cfg.OAuth.CallbackAddr != "127.0.0.1:17391" || cfg.OAuth.RedirectURI != "http://localhost:17391/callback" {
		t.Fatalf("oauth: %+v", cfg.OAuth)
	}
	if cfg.OAuth.Timeout != 300*time.Second {
		t.Fatalf("oauth timeout: %v", cfg.OAuth.Timeout)
	}
	if cfg.Assistant.Binary != "claude" {
		t.Fatalf("binary: %q", cfg.Assistant.Binary)
	}
	if cfg.Activity.Retention != 720*time.Hour || cfg.Activity.PurgeSchedule != "@daily" {
		t.Fatalf("activity: %+v", cfg.Activity)
	}
	if cfg.Ports.GracePeriod != 500*time.Millisecond {
		t.Fatalf("ports grace: %v", cfg.Ports.GracePeriod)
	}
	if cfg.Database.Path != filepath.Join("/tmp/drode-test", "drode.db") {
		t.Fatalf("database path: %q", cfg.Database.Path)
	}
	if cfg.Server.TokenFile != filepath.Join("/tmp/drode-test", "api-token") {
		t.Fatalf("token file: %q", cfg.Server.TokenFile)
	}
	if cfg.Log.Rotation.MaxSizeMB != 10 {
		t.Fatalf("rotation: %+v", cfg.Log.Rotation)
	}
}

func TestLoad_File(t *testing.T) {
	file := writeTOML(t, `
data_dir = "/srv/drode"

[database]
path = "sqlite:///srv/drode/custom.db"

[log]
level = "debug"
format = "json"
file = "/srv/drode/logs/drode.log"
max_size_mb = 50
compress = true

[server]
listen = "127.0.0.1:9000"

[process]
grace_period = "250ms"
transcript_dir = "/srv/drode/transcripts"

[assistant]
binary = "/opt/bin/claude"

[oauth]
timeout = "30s"

[activity]
retention = "24h"
purge_schedule = "0 3 * * *"
`)
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/srv/drode" || cfg.Database.Path != "sqlite:///srv/drode/custom.db" {
		t.Fatalf("paths: %+v %+v", cfg.DataDir, cfg.Database)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" || cfg.Log.Rotation.MaxSizeMB != 50 || !cfg.Log.Rotation.Compress {
		t.Fatalf("log: %+v", cfg.Log)
	}
	if cfg.Server.Listen != "127.0.0.1:9000" {
		t.Fatalf("listen: %q", cfg.Server.Listen)
	}
	if cfg.Process.GracePeriod != 250*time.Millisecond {
		t.Fatalf("grace: %v", cfg.Process.GracePeriod)
	}
	tr := cfg.Transcripts()
	if tr.Dir != "/srv/drode/transcripts" || tr.Rotation.MaxSizeMB != 50 {
		t.Fatalf("transcripts: %+v", tr)
	}
	if cfg.Assistant.Binary != "/opt/bin/claude" || cfg.OAuth.Timeout != 30*time.Second {
		t.Fatalf("assistant/oauth: %+v %+v", cfg.Assistant, cfg.OAuth)
	}
	if cfg.Activity.Retention != 24*time.Hour || cfg.Activity.PurgeSchedule != "0 3 * * *" {
		t.Fatalf("activity: %+v", cfg.Activity)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	file := writeTOML(t, `
[server]
listen = "127.0.0.1:9000"
`)
	t.Setenv("DRODE_SERVER_LISTEN", "127.0.0.1:9100")
	t.Setenv("DRODE_ASSISTANT_BINARY", "claude-dev")
	t.Setenv("DRODE_PROCESS_GRACE_PERIOD", "2s")
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:9100" {
		t.Fatalf("listen: %q", cfg.Server.Listen)
	}
	if cfg.Assistant.Binary != "claude-dev" {
		t.Fatalf("binary: %q", cfg.Assistant.Binary)
	}
	if cfg.Process.GracePeriod != 2*time.Second {
		t.Fatalf("grace: %v", cfg.Process.GracePeriod)
	}
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name string
		toml string
		want string
	}{
		{"format", "[log]\nformat = \"xml\"\n", "log.format"},
		{"level", "[log]\nlevel = \"loud\"\n", "level"},
		{"listen", "[server]\nlisten = \"nope\"\n", "server.listen"},
		{"grace", "[process]\ngrace_period = \"0s\"\n", "grace_period"},
		{"timeout", "[oauth]\ntimeout = \"-1s\"\n", "oauth.timeout"},
		{"binary", "[assistant]\nbinary = \" \"\n", "assistant.binary"},
		{"syntax", "[server\nlisten=", "read config"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTOML(t, tc.toml))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
