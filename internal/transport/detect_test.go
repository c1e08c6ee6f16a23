package transport

import "testing"

func TestPickDevice(t *testing.T) {
	tests := []struct {
		name  string
		ports []string
		want  string
	}{
		{"none", nil, ""},
		{"only builtin uart", []string{"/dev/ttyS0", "/dev/ttyAMA0"}, ""},
		{"acm preferred over usb", []string{"/dev/ttyUSB0", "/dev/ttyACM1", "/dev/ttyACM0"}, "/dev/ttyACM0"},
		{"usb bridge", []string{"/dev/ttyS0", "/dev/ttyUSB1", "/dev/ttyUSB0"}, "/dev/ttyUSB0"},
		{"macos", []string{"/dev/cu.Bluetooth", "/dev/cu.usbmodem14101"}, "/dev/cu.usbmodem14101"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pickDevice(tt.ports); got != tt.want {
				t.Errorf("got %q want %q", got, tt.want)
			}
		})
	}
}
