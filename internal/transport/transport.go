// Package transport: канал до приёмника (последовательный порт или gpsd).
//
// Транспорт ничего не знает о UBX: он только сообщает, сколько байт ждёт
// чтения, отдаёт их и пишет готовые кадры.
package transport

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Transport: последовательный канал до приёмника.
type Transport interface {
	// BytesWaiting возвращает число байт, готовых к чтению без ожидания.
	BytesWaiting() (int, error)
	// ReadAvailable читает всё, что уже пришло. Может вернуть пустой срез.
	ReadAvailable() ([]byte, error)
	// Write отправляет данные целиком.
	Write(p []byte) error
	// Device возвращает путь к устройству приёмника.
	Device() string
	// Close освобождает канал
	Close() error
}

// Error: ошибка ввода-вывода транспорта.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Виды транспорта
const (
	KindGPSD   = "gpsd"
	KindSerial = "serial"
)

// Config выбирает и настраивает транспорт.
type Config struct {
	Kind     string // gpsd (по умолчанию) или serial
	Device   string // путь к устройству; пусто: gpsd выберет первое, serial найдёт сам
	Baud     int
	GPSDAddr string
	// PollInterval: сколько ждать данных за один опрос (serial без TIOCINQ, gpsd)
	PollInterval time.Duration
}

const (
	DefaultBaud         = 9600
	DefaultPollInterval = 20 * time.Millisecond
)

// Open открывает транспорт по конфигу.
func Open(ctx context.Context, c Config) (Transport, error) {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	kind := strings.ToLower(strings.TrimSpace(c.Kind))
	switch kind {
	case "", KindGPSD:
		g, err := DialGPSD(ctx, c.GPSDAddr, c.Device, c.PollInterval)
		if err != nil {
			return nil, err
		}
		return g, nil
	case KindSerial:
		dev := c.Device
		if dev == "" {
			d, err := DetectSerial()
			if err != nil {
				return nil, err
			}
			dev = d
		}
		baud := c.Baud
		if baud == 0 {
			baud = DefaultBaud
		}
		s, err := OpenSerial(dev, baud, c.PollInterval)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown transport: %s", c.Kind)
	}
}
