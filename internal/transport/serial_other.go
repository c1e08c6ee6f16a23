//go:build !linux

package transport

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

const readChunk = 4096

// Serial: последовательный порт через tarm/serial. Без TIOCINQ число
// ожидающих байт узнаётся чтением с коротким таймаутом.
type Serial struct {
	port    *serial.Port
	device  string
	pending []byte
}

// OpenSerial открывает порт; poll задаёт таймаут одного чтения.
func OpenSerial(device string, baud int, poll time.Duration) (*Serial, error) {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	c := &serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: poll,
	}
	p, err := serial.OpenPort(c)
	if err != nil {
		return nil, wrap("open", fmt.Errorf("%s: %w", device, err))
	}
	return &Serial{port: p, device: device}, nil
}

// BytesWaiting реализует Transport.
func (s *Serial) BytesWaiting() (int, error) {
	if len(s.pending) > 0 {
		return len(s.pending), nil
	}
	buf := make([]byte, readChunk)
	n, err := s.port.Read(buf)
	if n > 0 {
		s.pending = append(s.pending, buf[:n]...)
	}
	// Таймаут чтения tarm/serial отдаёт как (0, io.EOF).
	if err != nil && !errors.Is(err, io.EOF) {
		return len(s.pending), wrap("read", err)
	}
	return len(s.pending), nil
}

// ReadAvailable реализует Transport.
func (s *Serial) ReadAvailable() ([]byte, error) {
	if len(s.pending) == 0 {
		if _, err := s.BytesWaiting(); err != nil {
			return nil, err
		}
	}
	out := s.pending
	s.pending = nil
	return out, nil
}

// Write реализует Transport.
func (s *Serial) Write(p []byte) error {
	_, err := s.port.Write(p)
	return wrap("write", err)
}

// Close закрывает порт
func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	return wrap("close", s.port.Close())
}

// Device возвращает путь к порту.
func (s *Serial) Device() string { return s.device }
