// Package store: состояние assistnow на диске.
//
// В каталоге два файла: assistnow.yml (данные регистрации и параметры
// последней загрузки) и assistnow.cache (сами данные). Временем записи
// кэша считается время модификации файла.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/ant9000/gpsd-assistnow/internal/cache"
	"github.com/ant9000/gpsd-assistnow/internal/cloud"
	"github.com/ant9000/gpsd-assistnow/internal/params"
)

// Имена файлов в каталоге состояния
const (
	StateFile = "assistnow.yml"
	CacheFile = "assistnow.cache"
)

// state: содержимое assistnow.yml
type state struct {
	Identity *cloud.Identity `yaml:"identity,omitempty"`
	Params   params.Tracked  `yaml:"params,omitempty"`
}

// FileStore хранит состояние в каталоге Dir.
type FileStore struct {
	Dir   string
	Clock clock.Clock
}

// New создаёт хранилище в dir.
func New(dir string) *FileStore {
	return &FileStore{Dir: dir, Clock: clock.New()}
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.Dir, name)
}

func (s *FileStore) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s *FileStore) loadState() (state, error) {
	var st state
	data, err := os.ReadFile(s.path(StateFile))
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("read state: %w", err)
	}
	if err := yaml.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("parse state: %w", err)
	}
	return st, nil
}

func (s *FileStore) saveState(st state) error {
	data, err := yaml.Marshal(&st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := s.writeFile(StateFile, data); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// LoadIdentity возвращает данные регистрации или nil.
func (s *FileStore) LoadIdentity() (*cloud.Identity, error) {
	st, err := s.loadState()
	if err != nil {
		return nil, err
	}
	if st.Identity == nil || st.Identity.ChipCode == "" {
		return nil, nil
	}
	return st.Identity, nil
}

// SaveIdentity сохраняет данные регистрации.
func (s *FileStore) SaveIdentity(id cloud.Identity) error {
	st, err := s.loadState()
	if err != nil {
		return err
	}
	st.Identity = &id
	return s.saveState(st)
}

// LoadTracked возвращает параметры последней загрузки (nil, если их нет).
func (s *FileStore) LoadTracked() (params.Tracked, error) {
	st, err := s.loadState()
	if err != nil {
		return nil, err
	}
	return st.Params, nil
}

// LoadCache реализует cache.Store.
func (s *FileStore) LoadCache(maxAge time.Duration) (*cache.Entry, error) {
	fi, err := os.Stat(s.path(CacheFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat cache: %w", err)
	}
	if s.now().Sub(fi.ModTime()) > maxAge {
		return nil, nil
	}
	data, err := os.ReadFile(s.path(CacheFile))
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	st, err := s.loadState()
	if err != nil {
		return nil, err
	}
	return &cache.Entry{Data: data, Params: st.Params, Timestamp: fi.ModTime()}, nil
}

// SaveCache реализует cache.Store. Время модификации файла выставляется
// в e.Timestamp.
func (s *FileStore) SaveCache(e cache.Entry) error {
	if err := s.writeFile(CacheFile, e.Data); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	if err := os.Chtimes(s.path(CacheFile), ts, ts); err != nil {
		return fmt.Errorf("touch cache: %w", err)
	}
	st, err := s.loadState()
	if err != nil {
		return err
	}
	st.Params = e.Params
	return s.saveState(st)
}

// writeFile пишет через временный файл в том же каталоге и rename.
func (s *FileStore) writeFile(name string, data []byte) (err error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	target := s.path(name)
	tmp, err := os.CreateTemp(s.Dir, name+".tmp.*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return multierr.Append(err, tmp.Close())
	}
	if err = tmp.Sync(); err != nil {
		return multierr.Append(err, tmp.Close())
	}
	if err = tmp.Chmod(0o644); err != nil {
		return multierr.Append(err, tmp.Close())
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, target)
}
