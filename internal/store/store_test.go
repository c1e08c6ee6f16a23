package store

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"

	"github.com/ant9000/gpsd-assistnow/internal/cache"
	"github.com/ant9000/gpsd-assistnow/internal/cloud"
	"github.com/ant9000/gpsd-assistnow/internal/params"
)

func TestIdentity(t *testing.T) {
	s := New(t.TempDir())

	id, err := s.LoadIdentity()
	if err != nil || id != nil {
		t.Fatalf("empty dir: %v, %v", id, err)
	}

	want := cloud.Identity{
		ChipCode:    "CHIP==",
		AllowedData: []string{"ukf_gps", "uporb_1"},
		ServiceURL:  "https://assistnow.example/v1",
	}
	if err := s.SaveIdentity(want); err != nil {
		t.Fatalf("SaveIdentity: %v", err)
	}
	got, err := New(s.Dir).LoadIdentity()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(&want, got); diff != "" {
		t.Errorf("(-want +got)\n%s", diff)
	}
}

func TestCache(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	s := &FileStore{Dir: filepath.Join(t.TempDir(), "state"), Clock: mock}

	if e, err := s.LoadCache(time.Hour); err != nil || e != nil {
		t.Fatalf("missing cache: %v, %v", e, err)
	}

	entry := cache.Entry{
		Data:      []byte{0xB5, 0x62, 0x13, 0x40, 0x00, 0x00, 0x53, 0xC4},
		Params:    params.Tracked{"lat": "52", "lon": "4.3", "filteronpos": "1"},
		Timestamp: mock.Now(),
	}
	if err := s.SaveCache(entry); err != nil {
		t.Fatalf("SaveCache: %v", err)
	}
	if err := s.SaveIdentity(cloud.Identity{ChipCode: "C", ServiceURL: "u"}); err != nil {
		t.Fatal(err)
	}

	mock.Add(time.Hour)
	got, err := s.LoadCache(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("entry at maxAge was not returned")
	}
	if !bytes.Equal(got.Data, entry.Data) {
		t.Errorf("data=% X", got.Data)
	}
	if !got.Params.Equal(entry.Params) {
		t.Errorf("params=%v", got.Params)
	}
	if !got.Timestamp.Equal(entry.Timestamp) {
		t.Errorf("timestamp=%v want %v", got.Timestamp, entry.Timestamp)
	}

	tracked, err := s.LoadTracked()
	if err != nil || !tracked.Equal(entry.Params) {
		t.Errorf("tracked=%v err=%v", tracked, err)
	}
	if id, _ := s.LoadIdentity(); id == nil || id.ChipCode != "C" {
		t.Errorf("identity lost after cache save: %v", id)
	}

	mock.Add(time.Second)
	if got, err := s.LoadCache(time.Hour); err != nil || got != nil {
		t.Errorf("expired entry: %v, %v", got, err)
	}
}

func TestNoTempFilesLeft(t *testing.T) {
	s := New(t.TempDir())
	for i := 0; i < 3; i++ {
		if err := s.SaveCache(cache.Entry{Data: []byte{byte(i)}}); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if diff := cmp.Diff([]string{CacheFile, StateFile}, names); diff != "" {
		t.Errorf("files (-want +got)\n%s", diff)
	}
}

func TestCorruptState(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, StateFile), []byte("identity: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := New(dir).LoadIdentity()
	if err == nil || !strings.Contains(err.Error(), "parse state") {
		t.Fatalf("got %v", err)
	}
}
