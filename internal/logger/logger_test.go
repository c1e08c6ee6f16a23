package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestQuietAndDebug(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer func() {
		Quiet = false
		SetDebug(false)
	}()

	Info("valid cache found")
	if !strings.Contains(buf.String(), "valid cache found") {
		t.Fatalf("info not written: %q", buf.String())
	}

	buf.Reset()
	Quiet = true
	Info("hidden")
	Error("device did not answer")
	Warn("%d malformed packets skipped", 2)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("quiet info written: %q", out)
	}
	if !strings.Contains(out, "device did not answer") {
		t.Errorf("error not written: %q", out)
	}
	if !strings.Contains(out, "2 malformed packets skipped") {
		t.Errorf("warn not written under quiet: %q", out)
	}

	buf.Reset()
	Debug("dropped %d packets", 3)
	if buf.Len() != 0 {
		t.Errorf("debug written without SetDebug: %q", buf.String())
	}
	SetDebug(true)
	cacheLog := With("cache")
	cacheLog.Info().Msg("quiet component")
	if buf.Len() != 0 {
		t.Errorf("quiet component logged: %q", buf.String())
	}

	Quiet = false
	rcvLog := With("receiver")
	rcvLog.Debug().Int("dropped", 3).Msg("drop")
	if !strings.Contains(buf.String(), "module=receiver") {
		t.Errorf("component field missing: %q", buf.String())
	}

	buf.Reset()
	SetDebug(false)
	rcvLog.Debug().Msg("after debug off")
	if buf.Len() != 0 {
		t.Errorf("component debug written without SetDebug: %q", buf.String())
	}
}
