package transport

import (
	"errors"
	"sort"
	"strings"

	"go.bug.st/serial"
)

// ErrNoDevice: автоопределение не нашло ни одного порта приёмника.
var ErrNoDevice = errors.New("no serial gnss device found")

// USB-приёмники u-blox появляются как ttyACM* (CDC) или ttyUSB* (мост).
var detectPrefixes = []string{"/dev/ttyACM", "/dev/ttyUSB", "/dev/cu.usbmodem"}

// DetectSerial возвращает первый подходящий порт из списка системы.
func DetectSerial() (string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return "", wrap("detect", err)
	}
	dev := pickDevice(ports)
	if dev == "" {
		return "", ErrNoDevice
	}
	return dev, nil
}

func pickDevice(ports []string) string {
	sorted := append([]string(nil), ports...)
	sort.Strings(sorted)
	for _, prefix := range detectPrefixes {
		for _, p := range sorted {
			if strings.HasPrefix(p, prefix) {
				return p
			}
		}
	}
	return ""
}
