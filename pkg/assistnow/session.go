package assistnow

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ant9000/gpsd-assistnow/internal/cache"
	"github.com/ant9000/gpsd-assistnow/internal/cloud"
	"github.com/ant9000/gpsd-assistnow/internal/config"
	"github.com/ant9000/gpsd-assistnow/internal/params"
	"github.com/ant9000/gpsd-assistnow/internal/receiver"
	"github.com/ant9000/gpsd-assistnow/internal/store"
	"github.com/ant9000/gpsd-assistnow/internal/transport"
)

// Session: открытый приёмник с облаком и хранилищем по конфигу.
type Session struct {
	cfg      *config.Config
	tr       transport.Transport
	receiver *receiver.Receiver
	deps     Deps
}

// Open открывает транспорт и собирает зависимости.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Session, error) {
	tc := cfg.TransportConfig()
	tr, err := transport.Open(ctx, tc)
	if err != nil {
		return nil, fmt.Errorf("open %s transport: %w", tc.Kind, err)
	}
	log.Debug().Str("transport", tc.Kind).Str("device", tr.Device()).Msg("transport opened")
	rcv := receiver.New(tr,
		receiver.WithTimeout(cfg.Timeout),
		receiver.WithPollInterval(cfg.PollInterval),
		receiver.WithLogger(log.With().Str("module", "receiver").Logger()),
	)
	cloudLog := log.With().Str("module", "cloud").Logger()
	return &Session{
		cfg:      cfg,
		tr:       tr,
		receiver: rcv,
		deps: Deps{
			Device: rcv,
			Cloud:  cloud.NewClient(cfg.CloudConfig(), cloudLog),
			Store:  store.New(cfg.StateDir),
			Log:    &log,
		},
	}, nil
}

// Registered сообщает, зарегистрировано ли устройство.
func (s *Session) Registered() (bool, error) { return Registered(s.deps) }

// Register регистрирует приёмник.
func (s *Session) Register(ctx context.Context, token string) (cloud.Identity, error) {
	return Register(ctx, s.deps, token)
}

// Update загружает данные на приёмник. cache_duration из raw важнее
// значения из конфига.
func (s *Session) Update(ctx context.Context, raw map[string]string) (cache.Result, error) {
	validity, err := s.cacheDuration(raw)
	if err != nil {
		return cache.Result{}, err
	}
	return Update(ctx, s.deps, raw, validity)
}

// OneShot загружает данные с сервиса Online без регистрации.
func (s *Session) OneShot(ctx context.Context, token string, raw map[string]string) (receiver.SendStats, error) {
	return OneShot(ctx, s.deps, token, raw)
}

// Stats возвращает счётчики приёмника.
func (s *Session) Stats() receiver.Stats { return s.receiver.Stats() }

func (s *Session) cacheDuration(raw map[string]string) (time.Duration, error) {
	v, ok := raw[params.KeyCacheDuration]
	if !ok {
		v = s.cfg.CacheDuration
	}
	return params.CacheDuration(v)
}

// Close закрывает транспорт. Повторный вызов ничего не делает.
func (s *Session) Close() error {
	if s.tr == nil {
		return nil
	}
	tr := s.tr
	s.tr = nil
	return tr.Close()
}
