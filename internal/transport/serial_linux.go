//go:build linux

package transport

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Serial: последовательный порт. На Linux число ожидающих байт берётся
// ioctl TIOCINQ, поэтому опрос не блокируется.
type Serial struct {
	f      *os.File
	fd     int
	device string
}

// OpenSerial открывает порт в raw-режиме на заданной скорости.
func OpenSerial(device string, baud int, _ time.Duration) (*Serial, error) {
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, wrap("open", fmt.Errorf("%s: %w", device, err))
	}

	ok := false
	defer func() {
		if !ok {
			_ = unix.Close(fd)
		}
	}()

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, wrap("open", err)
	}
	spd, err := baudToUnix(baud)
	if err != nil {
		return nil, wrap("open", err)
	}

	// Raw: без обработки строк, 8N1. UBX бинарный, любые преобразования его ломают.
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

	// Чтение не ждёт: читаем только то, что показал TIOCINQ.
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0

	t.Cflag &^= unix.CBAUD
	t.Cflag |= spd
	t.Ispeed = spd
	t.Ospeed = spd

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return nil, wrap("open", err)
	}

	f := os.NewFile(uintptr(fd), device)
	if f == nil {
		return nil, wrap("open", fmt.Errorf("os.NewFile failed"))
	}
	ok = true
	return &Serial{f: f, fd: fd, device: device}, nil
}

// BytesWaiting реализует Transport.
func (s *Serial) BytesWaiting() (int, error) {
	n, err := unix.IoctlGetInt(s.fd, unix.TIOCINQ)
	if err != nil {
		return 0, wrap("ioctl", err)
	}
	return n, nil
}

// ReadAvailable реализует Transport.
func (s *Serial) ReadAvailable() ([]byte, error) {
	n, err := s.BytesWaiting()
	if err != nil || n == 0 {
		return nil, err
	}
	buf := make([]byte, n)
	r, err := s.f.Read(buf)
	if err != nil {
		return nil, wrap("read", err)
	}
	return buf[:r], nil
}

// Write реализует Transport.
func (s *Serial) Write(p []byte) error {
	_, err := s.f.Write(p)
	return wrap("write", err)
}

// Close закрывает порт
func (s *Serial) Close() error {
	if s.f == nil {
		return nil
	}
	return wrap("close", s.f.Close())
}

// Device возвращает путь к порту.
func (s *Serial) Device() string { return s.device }

func baudToUnix(baud int) (uint32, error) {
	switch baud {
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	case 460800:
		return unix.B460800, nil
	case 921600:
		return unix.B921600, nil
	default:
		return 0, fmt.Errorf("unsupported baud %d", baud)
	}
}
