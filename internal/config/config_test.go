package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assistnow.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), c); diff != "" {
		t.Errorf("(-default +loaded)\n%s", diff)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
transport: Serial
device: /dev/ttyUSB1
baud: 38400
state_dir: /var/lib/assistnow
timeout: 500ms
cache_duration: 1.5
http_timeout: 10s
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	want.Transport = "serial"
	want.Device = "/dev/ttyUSB1"
	want.Baud = 38400
	want.StateDir = "/var/lib/assistnow"
	want.Timeout = 500 * time.Millisecond
	want.CacheDuration = "1.5"
	want.HTTPTimeout = 10 * time.Second
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("(-want +got)\n%s", diff)
	}

	tc := c.TransportConfig()
	if tc.Kind != "serial" || tc.Device != "/dev/ttyUSB1" || tc.Baud != 38400 {
		t.Errorf("transport config=%+v", tc)
	}
	if cc := c.CloudConfig(); cc.Timeout != 10*time.Second || cc.CredentialsURL == "" {
		t.Errorf("cloud config=%+v", cc)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("ASSISTNOW_DEVICE", "/dev/ttyACM3")
	t.Setenv("ASSISTNOW_GPSD", "gpsd.local:2947")
	t.Setenv("ASSISTNOW_POLL_INTERVAL", "5ms")

	path := writeConfig(t, "device: /dev/ttyACM0\n")
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Device != "/dev/ttyACM3" {
		t.Errorf("device=%q, environment should win over file", c.Device)
	}
	if c.GPSD != "gpsd.local:2947" {
		t.Errorf("gpsd=%q", c.GPSD)
	}
	if c.PollInterval != 5*time.Millisecond {
		t.Errorf("poll_interval=%v", c.PollInterval)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("missing file: expected error")
	}
	if _, err := Load(writeConfig(t, "transport: bluetooth\n")); err == nil {
		t.Error("unknown transport: expected error")
	}
	if _, err := Load(writeConfig(t, "timeout: soon\n")); err == nil {
		t.Error("bad duration: expected error")
	}
}
