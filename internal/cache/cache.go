// Package cache: кэш данных AssistNow с инвалидацией по параметрам.
//
// Запись действительна, пока не истёк срок годности и отслеживаемые
// параметры совпадают с запрошенными. Иначе данные загружаются заново,
// перед ними ставится пакет начальной позиции, и результат сохраняется.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/ant9000/gpsd-assistnow/internal/params"
	"github.com/ant9000/gpsd-assistnow/internal/receiver"
)

// Entry: сохранённые данные и параметры, с которыми они получены.
type Entry struct {
	Data      []byte
	Params    params.Tracked
	Timestamp time.Time
}

// Store хранит одну запись кэша.
type Store interface {
	// LoadCache возвращает nil, если записи нет или она старше maxAge.
	LoadCache(maxAge time.Duration) (*Entry, error)
	SaveCache(e Entry) error
}

// Fetcher загружает данные из облака.
type Fetcher interface {
	Fetch(ctx context.Context, p params.Params) ([]byte, error)
}

// FetchFunc: Fetcher из функции.
type FetchFunc func(ctx context.Context, p params.Params) ([]byte, error)

// Fetch реализует Fetcher.
func (f FetchFunc) Fetch(ctx context.Context, p params.Params) ([]byte, error) {
	return f(ctx, p)
}

// Sender пересылает поток пакетов на приёмник.
type Sender interface {
	SendStream(data []byte) (receiver.SendStats, error)
}

// Result: итог Update.
type Result struct {
	Hit       bool
	Bytes     int
	Forwarded int
	Dropped   int
	Leftover  int
}

// Manager: менеджер кэша.
type Manager struct {
	store    Store
	fetch    Fetcher
	send     Sender
	validity time.Duration
	clock    clock.Clock
	log      zerolog.Logger
}

// Option настраивает Manager.
type Option func(*Manager)

// WithClock подменяет часы (для тестов).
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger задаёт логгер.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager создаёт менеджер. validity обрезается до [0, 24] ч.
func NewManager(store Store, fetch Fetcher, send Sender, validity time.Duration, opts ...Option) *Manager {
	switch {
	case validity < 0:
		validity = 0
	case validity > params.MaxCacheHours*time.Hour:
		validity = params.MaxCacheHours * time.Hour
	}
	m := &Manager{
		store:    store,
		fetch:    fetch,
		send:     send,
		validity: validity,
		clock:    clock.New(),
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Validity возвращает срок годности записи.
func (m *Manager) Validity() time.Duration { return m.validity }

// Get возвращает данные для приёмника и признак попадания в кэш.
func (m *Manager) Get(ctx context.Context, p params.Params) ([]byte, bool, error) {
	tracked := p.Tracked()

	e, err := m.store.LoadCache(m.validity)
	if err != nil {
		m.log.Warn().Err(err).Msg("cache unreadable, fetching")
		e = nil
	}
	switch {
	case e == nil:
		m.log.Debug().Msg("no cached data")
	case m.clock.Since(e.Timestamp) > m.validity:
		m.log.Debug().Time("stored", e.Timestamp).Dur("validity", m.validity).Msg("cache expired")
	case !e.Params.Equal(tracked):
		m.log.Info().Str("old", e.Params.String()).Str("new", tracked.String()).Msg("update parameters have changed: invalidate cache")
	default:
		m.log.Info().Int("bytes", len(e.Data)).Msg("valid cache found")
		return e.Data, true, nil
	}

	data, err := m.fetch.Fetch(ctx, p)
	if err != nil {
		return nil, false, err
	}

	var blob []byte
	aid, ok, err := p.Aid()
	if err != nil {
		return nil, false, fmt.Errorf("position aid: %w", err)
	}
	if ok {
		blob = make([]byte, 0, len(aid.Raw)+len(data))
		blob = append(blob, aid.Raw...)
	}
	blob = append(blob, data...)

	if len(blob) > 0 {
		entry := Entry{Data: blob, Params: tracked, Timestamp: m.clock.Now()}
		if err := m.store.SaveCache(entry); err != nil {
			m.log.Warn().Err(err).Msg("cache not saved")
		}
	}
	return blob, false, nil
}

// Update получает данные (из кэша или облака) и отправляет их на приёмник.
func (m *Manager) Update(ctx context.Context, p params.Params) (Result, error) {
	data, hit, err := m.Get(ctx, p)
	if err != nil {
		return Result{}, err
	}
	st, err := m.send.SendStream(data)
	res := Result{
		Hit:       hit,
		Bytes:     len(data),
		Forwarded: st.Packets,
		Dropped:   st.Dropped,
		Leftover:  st.Leftover,
	}
	if err != nil {
		return res, fmt.Errorf("send to receiver: %w", err)
	}
	return res, nil
}
