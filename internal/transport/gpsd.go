package transport

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

const (
	DefaultGPSDAddr  = "127.0.0.1:2947"
	gpsdHandshake    = 5 * time.Second
	gpsdMaxLineBytes = 64 * 1024
)

// GPSD: доступ к приёмнику через gpsd. Сырой поток устройства приходит
// через ?WATCH raw=2, запись идёт командой ?DEVICE с полем hexdata.
// JSON-ответы gpsd попадают в поток как текст и отбрасываются кодеком.
type GPSD struct {
	conn    net.Conn
	rd      *bufio.Reader
	device  string
	poll    time.Duration
	pending []byte
}

type gpsdMsgBase struct {
	Class string `json:"class"`
}

type gpsdDevice struct {
	Path   string `json:"path"`
	Driver string `json:"driver,omitempty"`
}

type gpsdDevices struct {
	Class   string       `json:"class"`
	Devices []gpsdDevice `json:"devices"`
}

type gpsdWatch struct {
	Enable bool   `json:"enable"`
	Raw    int    `json:"raw"`
	Device string `json:"device,omitempty"`
}

type gpsdDeviceCmd struct {
	Path    string `json:"path"`
	HexData string `json:"hexdata"`
}

// DialGPSD подключается к gpsd и включает сырой поток устройства.
// Пустой device означает первое устройство из ?DEVICES.
func DialGPSD(ctx context.Context, addr, device string, poll time.Duration) (*GPSD, error) {
	if strings.TrimSpace(addr) == "" {
		addr = DefaultGPSDAddr
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	d := &net.Dialer{Timeout: 2 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, wrap("dial", err)
	}

	g := &GPSD{conn: conn, rd: bufio.NewReaderSize(conn, 8192), device: device, poll: poll}
	if err := g.handshake(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return g, nil
}

func (g *GPSD) handshake() error {
	if err := g.conn.SetDeadline(time.Now().Add(gpsdHandshake)); err != nil {
		return wrap("handshake", err)
	}
	if g.device == "" {
		if _, err := g.conn.Write([]byte("?DEVICES;\n")); err != nil {
			return wrap("handshake", err)
		}
		dev, err := g.awaitDevices()
		if err != nil {
			return wrap("handshake", err)
		}
		g.device = dev
	}
	cmd, err := json.Marshal(gpsdWatch{Enable: true, Raw: 2, Device: g.device})
	if err != nil {
		return wrap("handshake", err)
	}
	if _, err := g.conn.Write([]byte("?WATCH=" + string(cmd) + "\n")); err != nil {
		return wrap("handshake", err)
	}
	return wrap("handshake", g.conn.SetDeadline(time.Time{}))
}

// awaitDevices читает JSON-строки до ответа DEVICES.
func (g *GPSD) awaitDevices() (string, error) {
	for {
		line, err := g.rd.ReadSlice('\n')
		if err != nil {
			if errors.Is(err, bufio.ErrBufferFull) {
				continue
			}
			return "", err
		}
		var base gpsdMsgBase
		if json.Unmarshal(line, &base) != nil || base.Class != "DEVICES" {
			continue
		}
		var msg gpsdDevices
		if err := json.Unmarshal(line, &msg); err != nil {
			return "", err
		}
		for _, d := range msg.Devices {
			if d.Path != "" {
				return d.Path, nil
			}
		}
		return "", errors.New("gpsd reports no devices")
	}
}

// Device возвращает путь устройства, с которым работает gpsd.
func (g *GPSD) Device() string { return g.device }

// BytesWaiting реализует Transport: ждёт данных не дольше poll.
func (g *GPSD) BytesWaiting() (int, error) {
	if len(g.pending) > 0 {
		return len(g.pending), nil
	}
	if n := g.rd.Buffered(); n > 0 {
		return g.fill(n)
	}
	if err := g.conn.SetReadDeadline(time.Now().Add(g.poll)); err != nil {
		return 0, wrap("read", err)
	}
	return g.fill(g.rd.Size())
}

func (g *GPSD) fill(max int) (int, error) {
	buf := make([]byte, max)
	n, err := g.rd.Read(buf)
	g.pending = append(g.pending, buf[:n]...)
	if err != nil && !isTimeout(err) {
		return len(g.pending), wrap("read", err)
	}
	return len(g.pending), nil
}

// ReadAvailable реализует Transport.
func (g *GPSD) ReadAvailable() ([]byte, error) {
	if len(g.pending) == 0 {
		if _, err := g.BytesWaiting(); err != nil {
			return nil, err
		}
	}
	out := g.pending
	g.pending = nil
	return out, nil
}

// Write реализует Transport: данные уходят на устройство через gpsd.
func (g *GPSD) Write(p []byte) error {
	cmd, err := json.Marshal(gpsdDeviceCmd{Path: g.device, HexData: hex.EncodeToString(p)})
	if err != nil {
		return wrap("write", err)
	}
	if len(cmd) > gpsdMaxLineBytes {
		return wrap("write", fmt.Errorf("command too long: %d bytes", len(cmd)))
	}
	_, err = g.conn.Write([]byte("?DEVICE=" + string(cmd) + "\n"))
	return wrap("write", err)
}

// Close закрывает соединение с gpsd.
func (g *GPSD) Close() error {
	if g.conn == nil {
		return nil
	}
	return wrap("close", g.conn.Close())
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
