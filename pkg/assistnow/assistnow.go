// Package assistnow: регистрация устройства и загрузка данных AssistNow
// на приёмник u-blox. Используется из cmd/assistnow и для встраивания.
package assistnow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/ant9000/gpsd-assistnow/internal/cache"
	"github.com/ant9000/gpsd-assistnow/internal/cloud"
	"github.com/ant9000/gpsd-assistnow/internal/params"
	"github.com/ant9000/gpsd-assistnow/internal/receiver"
	"github.com/ant9000/gpsd-assistnow/internal/ubx"
)

var (
	// ErrNotRegistered: для Update нужна регистрация устройства.
	ErrNotRegistered = errors.New("device not registered")
	// ErrAlreadyRegistered: повторная регистрация запрещена.
	ErrAlreadyRegistered = errors.New("device already registered")
	// ErrNoToken: для регистрации и одноразового режима нужен токен.
	ErrNoToken = errors.New("token required")
)

// Device: приёмник за транспортом.
type Device interface {
	Identify() (uniqueID, monVer *ubx.Packet, err error)
	SendStream(data []byte) (receiver.SendStats, error)
}

// Cloud: сервисы AssistNow.
type Cloud interface {
	Register(ctx context.Context, uniqueIDHex, monVerHex, token string) (cloud.Identity, error)
	FetchAssistance(ctx context.Context, id cloud.Identity, p params.Params) ([]byte, error)
	FetchOnline(ctx context.Context, token string, p params.OnlineParams) ([]byte, error)
}

// Store: сохранённое состояние устройства.
type Store interface {
	cache.Store
	LoadIdentity() (*cloud.Identity, error)
	SaveIdentity(id cloud.Identity) error
	LoadTracked() (params.Tracked, error)
}

// Deps: зависимости операций. Clock и Log необязательны.
type Deps struct {
	Device Device
	Cloud  Cloud
	Store  Store
	Clock  clock.Clock
	Log    *zerolog.Logger
}

func (d Deps) log() *zerolog.Logger {
	if d.Log == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return d.Log
}

// Registered сообщает, зарегистрировано ли устройство.
func Registered(d Deps) (bool, error) {
	id, err := d.Store.LoadIdentity()
	if err != nil {
		return false, err
	}
	return id != nil, nil
}

// Register опрашивает приёмник и регистрирует его в облаке.
func Register(ctx context.Context, d Deps, token string) (cloud.Identity, error) {
	if token == "" {
		return cloud.Identity{}, ErrNoToken
	}
	existing, err := d.Store.LoadIdentity()
	if err != nil {
		return cloud.Identity{}, err
	}
	if existing != nil {
		return cloud.Identity{}, fmt.Errorf("%w: chipcode %s", ErrAlreadyRegistered, existing.ChipCode)
	}

	uniqueID, monVer, err := d.Device.Identify()
	if err != nil {
		return cloud.Identity{}, err
	}
	id, err := d.Cloud.Register(ctx, receiver.FrameHex(uniqueID), receiver.FrameHex(monVer), token)
	if err != nil {
		return cloud.Identity{}, err
	}
	if err := d.Store.SaveIdentity(id); err != nil {
		return cloud.Identity{}, err
	}
	d.log().Info().Str("chipcode", id.ChipCode).Strs("allowed_data", id.AllowedData).Msg("device registered")
	return id, nil
}

// Update отправляет на приёмник данные из кэша или свежие из облака.
// Если в raw нет ни одного отслеживаемого ключа, берутся параметры
// прошлой загрузки.
func Update(ctx context.Context, d Deps, raw map[string]string, cacheDuration time.Duration) (cache.Result, error) {
	id, err := d.Store.LoadIdentity()
	if err != nil {
		return cache.Result{}, err
	}
	if id == nil {
		return cache.Result{}, ErrNotRegistered
	}

	if !params.HasTracked(raw) {
		stored, err := d.Store.LoadTracked()
		if err != nil {
			return cache.Result{}, err
		}
		d.log().Debug().Str("params", stored.String()).Msg("reusing stored parameters")
		raw = stored
	}
	p, err := params.Parse(raw, id.AllowedData)
	if err != nil {
		return cache.Result{}, err
	}

	identity := *id
	fetch := cache.FetchFunc(func(ctx context.Context, p params.Params) ([]byte, error) {
		d.log().Info().Str("url", identity.ServiceURL).Msg("fetching data")
		return d.Cloud.FetchAssistance(ctx, identity, p)
	})
	opts := []cache.Option{cache.WithLogger(*d.log())}
	if d.Clock != nil {
		opts = append(opts, cache.WithClock(d.Clock))
	}
	m := cache.NewManager(d.Store, fetch, d.Device, cacheDuration, opts...)

	res, err := m.Update(ctx, p)
	if err != nil {
		return res, err
	}
	d.log().Info().Bool("cached", res.Hit).Int("packets", res.Forwarded).Int("dropped", res.Dropped).Msg("sent data to device")
	return res, nil
}

// OneShot загружает данные с сервиса Online и сразу отправляет их на
// приёмник, без регистрации и кэша.
func OneShot(ctx context.Context, d Deps, token string, raw map[string]string) (receiver.SendStats, error) {
	if token == "" {
		return receiver.SendStats{}, ErrNoToken
	}
	p, err := params.ParseOnline(raw)
	if err != nil {
		return receiver.SendStats{}, err
	}
	data, err := d.Cloud.FetchOnline(ctx, token, p)
	if err != nil {
		return receiver.SendStats{}, err
	}
	aid, ok, err := p.Aid()
	if err != nil {
		return receiver.SendStats{}, fmt.Errorf("position aid: %w", err)
	}
	if ok {
		data = append(append([]byte(nil), aid.Raw...), data...)
	}
	if len(data) == 0 {
		d.log().Warn().Msg("service returned no data")
		return receiver.SendStats{}, nil
	}
	st, err := d.Device.SendStream(data)
	if err != nil {
		return st, fmt.Errorf("send to receiver: %w", err)
	}
	d.log().Info().Int("packets", st.Packets).Int("bytes", st.Bytes).Msg("sent data to device")
	return st, nil
}
