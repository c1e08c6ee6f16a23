// Package receiver: обмен запрос/ответ с приёмником поверх транспорта.
//
// Receiver соединяет чистый кодек ubx и транспорт. Одновременно
// обслуживается только один запрос; буфер накопления живёт в пределах
// одного вызова WaitFor.
package receiver

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/ant9000/gpsd-assistnow/internal/transport"
	"github.com/ant9000/gpsd-assistnow/internal/ubx"
)

const (
	DefaultTimeout      = 2 * time.Second
	DefaultPollInterval = 10 * time.Millisecond
)

// ErrDeviceNotResponding: приёмник не ответил на опрос идентификации.
var ErrDeviceNotResponding = errors.New("device did not answer")

// Stats: счётчики отброшенного при разборе входящего потока.
type Stats struct {
	// Dropped: участки шума и пакеты с неверной контрольной суммой
	Dropped int
	// Discarded: целые пакеты, пришедшие вместо ожидаемого ответа
	Discarded int
}

// Receiver: приёмник за транспортом.
type Receiver struct {
	tr      transport.Transport
	clock   clock.Clock
	timeout time.Duration
	poll    time.Duration
	log     zerolog.Logger
	stats   Stats
}

// Option настраивает Receiver.
type Option func(*Receiver)

// WithClock подменяет часы (для тестов).
func WithClock(c clock.Clock) Option {
	return func(r *Receiver) { r.clock = c }
}

// WithTimeout задаёт таймаут ответа для FetchAnswer.
func WithTimeout(d time.Duration) Option {
	return func(r *Receiver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithPollInterval задаёт паузу между опросами пустого транспорта.
func WithPollInterval(d time.Duration) Option {
	return func(r *Receiver) {
		if d > 0 {
			r.poll = d
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Receiver) { r.log = l }
}

// New создаёт Receiver поверх транспорта.
func New(tr transport.Transport, opts ...Option) *Receiver {
	r := &Receiver{
		tr:      tr,
		clock:   clock.New(),
		timeout: DefaultTimeout,
		poll:    DefaultPollInterval,
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Stats возвращает накопленные счётчики.
func (r *Receiver) Stats() Stats { return r.stats }

// WaitFor ждёт пакет (class, id) не дольше timeout. Остальные пакеты
// отбрасываются. По таймауту возвращает (nil, nil).
func (r *Receiver) WaitFor(class, id uint8, timeout time.Duration) (*ubx.Packet, error) {
	deadline := r.clock.Now().Add(timeout)
	var buf []byte
	for {
		n, err := r.tr.BytesWaiting()
		if err != nil {
			return nil, err
		}
		if n > 0 {
			b, err := r.tr.ReadAvailable()
			if err != nil {
				return nil, err
			}
			buf = append(buf, b...)
		}

		for {
			res := ubx.Decode(buf)
			if res.Consumed == 0 {
				break
			}
			buf = res.Remainder
			switch {
			case res.Packet == nil:
				r.stats.Dropped++
				r.log.Debug().Int("bytes", res.Consumed).Msg("dropped undecodable bytes")
			case res.Packet.Is(class, id):
				return res.Packet, nil
			default:
				r.stats.Discarded++
				r.log.Debug().Stringer("packet", res.Packet).Msg("discarded unexpected packet")
			}
		}

		if !r.clock.Now().Before(deadline) {
			r.log.Debug().Uint8("class", class).Uint8("id", id).Dur("timeout", timeout).Msg("no answer")
			return nil, nil
		}
		if n == 0 {
			r.clock.Sleep(r.poll)
		}
	}
}

// Send пишет пакет на приёмник.
func (r *Receiver) Send(p ubx.Packet) error {
	return r.tr.Write(p.Raw)
}

// FetchAnswer отправляет команду реестра и ждёт ответ с тем же адресом.
func (r *Receiver) FetchAnswer(name string) (*ubx.Packet, error) {
	cmd, err := ubx.LookupCommand(name)
	if err != nil {
		return nil, err
	}
	p, err := cmd.Packet()
	if err != nil {
		return nil, err
	}
	if err := r.Send(p); err != nil {
		return nil, fmt.Errorf("send %s: %w", name, err)
	}
	return r.WaitFor(cmd.Class, cmd.ID, r.timeout)
}

// FrameHex: полный кадр пакета в hex верхнего регистра, как его ждёт
// сервис регистрации.
func FrameHex(p *ubx.Packet) string {
	if p == nil {
		return ""
	}
	return strings.ToUpper(hex.EncodeToString(p.Raw))
}

// Identify опрашивает SEC-UNIQID и MON-VER. Оба ответа обязательны.
func (r *Receiver) Identify() (uniqueID, monVer *ubx.Packet, err error) {
	if uniqueID, err = r.FetchAnswer(ubx.CmdSecUniqID); err != nil {
		return nil, nil, err
	}
	if monVer, err = r.FetchAnswer(ubx.CmdMonVer); err != nil {
		return nil, nil, err
	}
	switch {
	case uniqueID == nil:
		return nil, nil, fmt.Errorf("%w: no %s", ErrDeviceNotResponding, ubx.CmdSecUniqID)
	case monVer == nil:
		return nil, nil, fmt.Errorf("%w: no %s", ErrDeviceNotResponding, ubx.CmdMonVer)
	}

	chip, _ := ubx.ParseUniqID(uniqueID.Payload)
	ev := r.log.Debug().Str("chip", chip)
	if v, ok := ubx.ParseMonVer(monVer.Payload); ok {
		ev = ev.Str("sw", v.Software).Str("hw", v.Hardware)
		if prot, ok := v.Extension("PROTVER"); ok {
			ev = ev.Str("protver", prot)
		}
	}
	ev.Msg("receiver identified")
	return uniqueID, monVer, nil
}

// SendStats: итог отправки потока.
type SendStats struct {
	Packets  int
	Bytes    int
	Dropped  int
	Leftover int
}

// SendStream режет поток на пакеты и пересылает валидные по одному.
// Останавливается на первом шаге без продвижения, поэтому мусор в хвосте
// не зацикливает отправку.
func (r *Receiver) SendStream(data []byte) (SendStats, error) {
	var st SendStats
	for len(data) > 0 {
		res := ubx.Decode(data)
		if res.Consumed == 0 {
			break
		}
		data = res.Remainder
		if res.Packet == nil {
			st.Dropped++
			continue
		}
		if res.Packet.Is(ubx.ClassMGA, ubx.IDMGAINI) {
			if aid, ok := ubx.ParsePositionAid(res.Packet.Payload); ok {
				r.log.Debug().
					Float64("lat", float64(aid.Lat)/1e7).
					Float64("lon", float64(aid.Lon)/1e7).
					Uint32("pacc_mm", aid.PAcc).
					Msg("sending position aid")
			}
		}
		if err := r.tr.Write(res.Packet.Raw); err != nil {
			return st, fmt.Errorf("send %v: %w", res.Packet, err)
		}
		st.Packets++
		st.Bytes += len(res.Packet.Raw)
	}
	st.Leftover = len(data)
	if st.Dropped > 0 || st.Leftover > 0 {
		r.log.Debug().Int("dropped", st.Dropped).Int("leftover", st.Leftover).Msg("stream had undecodable data")
	}
	return st, nil
}
