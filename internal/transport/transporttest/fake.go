// Package transporttest: подменный транспорт для тестов.
package transporttest

import (
	"github.com/ant9000/gpsd-assistnow/internal/ubx"
)

// Fake: транспорт в памяти. Записанные кадры сохраняются в Written;
// Respond может положить ответ во входящий поток.
type Fake struct {
	// Path: путь, который вернёт Device.
	Path string
	// Incoming: байты, ожидающие чтения.
	Incoming []byte
	// Chunk ограничивает размер одного чтения (0: без ограничения).
	Chunk int
	// Respond вызывается на каждую запись; результат дописывается в Incoming.
	Respond func(written []byte) []byte

	Written [][]byte

	WaitErr  error
	ReadErr  error
	WriteErr error

	Polls  int
	Closed bool
}

// BytesWaiting реализует transport.Transport.
func (f *Fake) BytesWaiting() (int, error) {
	f.Polls++
	if f.WaitErr != nil {
		return 0, f.WaitErr
	}
	return len(f.Incoming), nil
}

// ReadAvailable реализует transport.Transport.
func (f *Fake) ReadAvailable() ([]byte, error) {
	if f.ReadErr != nil {
		return nil, f.ReadErr
	}
	n := len(f.Incoming)
	if f.Chunk > 0 && n > f.Chunk {
		n = f.Chunk
	}
	out := append([]byte(nil), f.Incoming[:n]...)
	f.Incoming = f.Incoming[n:]
	return out, nil
}

// Write реализует transport.Transport.
func (f *Fake) Write(p []byte) error {
	if f.WriteErr != nil {
		return f.WriteErr
	}
	f.Written = append(f.Written, append([]byte(nil), p...))
	if f.Respond != nil {
		f.Incoming = append(f.Incoming, f.Respond(p)...)
	}
	return nil
}

// Device реализует transport.Transport.
func (f *Fake) Device() string { return f.Path }

// Close реализует transport.Transport.
func (f *Fake) Close() error {
	f.Closed = true
	return nil
}

// Addr: адрес UBX сообщения.
type Addr struct {
	Class uint8
	ID    uint8
}

// Answer строит Respond, отвечающий на опрос (class, id) заранее
// заданным кадром. Перед ответом добавляется noise, если он задан.
func Answer(answers map[Addr][]byte, noise []byte) func([]byte) []byte {
	return func(written []byte) []byte {
		res := ubx.Decode(written)
		if res.Packet == nil {
			return nil
		}
		frame, ok := answers[Addr{res.Packet.Class, res.Packet.ID}]
		if !ok {
			return nil
		}
		out := append([]byte(nil), noise...)
		return append(out, frame...)
	}
}

// WrittenPackets разбирает все записанные кадры.
func (f *Fake) WrittenPackets() []*ubx.Packet {
	var out []*ubx.Packet
	for _, w := range f.Written {
		pkts, _, _ := ubx.Split(w)
		out = append(out, pkts...)
	}
	return out
}
