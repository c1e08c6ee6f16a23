// assistnow: загрузка данных u-blox AssistNow на приёмник GNSS.
//
// Устройство один раз регистрируется в Thingstream по токену, дальше
// данные берутся с выданного сервиса и кэшируются на диске. Режим
// -oneshot обращается к прежнему сервису AssistNow Online без регистрации.
//
// Использование:
//
//	assistnow [device=DEVICE] token=TOKEN                        регистрация
//	assistnow [device=DEVICE] data=eph gnss=gps,glo lat=.. lon=.. обновление
//	assistnow -oneshot token=TOKEN datatype=eph lat=.. lon=..     без регистрации
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/multierr"

	"github.com/ant9000/gpsd-assistnow/internal/config"
	"github.com/ant9000/gpsd-assistnow/internal/logger"
	"github.com/ant9000/gpsd-assistnow/pkg/assistnow"
)

const usageText = `
Usage: %[1]s [flags] [key=value ...]

Valid keys:
- device: receiver device (gpsd device path or serial port)
- token: only used for an unregistered device (and with -oneshot)
- data, gnss, lat, lon, alt, pacc: used for requesting data from u-blox service
- cache_duration: validity of already downloaded data, in hours (default: 3)
- datatype, format, tacc, latency: -oneshot only

Examples:
- registration:
  %[1]s [device=DEVICE] token=TOKEN
- update:
  %[1]s [device=DEVICE] data=eph gnss=gps,glo lat=LAT lon=LON
- one-shot (AssistNow Online):
  %[1]s -oneshot token=TOKEN datatype=eph,alm gnss=gps lat=LAT lon=LON

Flags:
`

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигу (по умолчанию "+defaultConfigPath+", если есть)")
	kind := flag.String("transport", "", "транспорт: gpsd или serial (переопределяет config)")
	device := flag.String("device", "", "устройство (переопределяет config)")
	gpsdAddr := flag.String("gpsd", "", "адрес gpsd host:port (переопределяет config)")
	baud := flag.Int("baud", 0, "скорость порта для serial (переопределяет config)")
	stateDir := flag.String("state-dir", "", "каталог состояния и кэша (переопределяет config)")
	oneshot := flag.Bool("oneshot", false, "загрузить данные AssistNow Online без регистрации и кэша")
	quiet := flag.Bool("quiet", false, "меньше вывода")
	debug := flag.Bool("debug", false, "отладочный вывод")
	flag.Usage = func() { usage(flag.CommandLine.Output()) }
	flag.Parse()

	logger.Quiet = *quiet
	logger.SetDebug(*debug)

	kv, err := parseKV(flag.Args())
	if err != nil {
		logger.Error("%v", err)
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("config: %v", err)
		os.Exit(1)
	}
	ov := overrides{
		Transport: *kind,
		Device:    *device,
		GPSD:      *gpsdAddr,
		Baud:      *baud,
		StateDir:  *stateDir,
	}
	if err := ov.apply(cfg, kv); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, kv, *oneshot); err != nil {
		if errors.Is(err, errUnregistered) {
			logger.Error("Device is unregistered")
			fmt.Fprintf(os.Stderr, "Usage: %s token=TOKEN\n", progName())
		} else {
			logger.Error("%v", err)
		}
		stop()
		os.Exit(1)
	}
}

var errUnregistered = errors.New("device is unregistered")

// overrides: значения флагов, переопределяющие конфиг.
type overrides struct {
	Transport string
	Device    string
	GPSD      string
	Baud      int
	StateDir  string
}

// apply переносит непустые флаги в cfg; device= из аргументов важнее
// флага -device. Результат проверяется Validate.
func (o overrides) apply(cfg *config.Config, kv map[string]string) error {
	if k := strings.ToLower(strings.TrimSpace(o.Transport)); k != "" {
		cfg.Transport = k
	}
	if o.Device != "" {
		cfg.Device = o.Device
	}
	if v, ok := kv["device"]; ok && v != "" {
		cfg.Device = v
	}
	if o.GPSD != "" {
		cfg.GPSD = o.GPSD
	}
	if o.Baud != 0 {
		cfg.Baud = o.Baud
	}
	if o.StateDir != "" {
		cfg.StateDir = o.StateDir
	}
	return cfg.Validate()
}

func run(ctx context.Context, cfg *config.Config, kv map[string]string, oneshot bool) (err error) {
	sess, err := assistnow.Open(ctx, cfg, logger.With("assistnow"))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, sess.Close())
	}()

	if oneshot {
		st, err := sess.OneShot(ctx, kv["token"], kv)
		if st.Dropped > 0 {
			logger.Warn("%d malformed packets skipped in downloaded data", st.Dropped)
		}
		return err
	}

	registered, err := sess.Registered()
	if err != nil {
		return err
	}
	if !registered {
		token, ok := kv["token"]
		if !ok {
			return errUnregistered
		}
		id, err := sess.Register(ctx, token)
		if err != nil {
			return fmt.Errorf("registration: %w", err)
		}
		logger.Info("Device now registered with chipcode %s", id.ChipCode)
		return nil
	}

	res, err := sess.Update(ctx, kv)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	if res.Dropped > 0 {
		logger.Warn("%d malformed packets skipped in downloaded data", res.Dropped)
	}
	if st := sess.Stats(); st.Dropped > 0 || st.Discarded > 0 {
		logger.Debug("receiver: %d dropped, %d discarded", st.Dropped, st.Discarded)
	}
	return nil
}

// parseKV разбирает аргументы вида key=value.
func parseKV(args []string) (map[string]string, error) {
	kv := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("malformed argument %q, want key=value", a)
		}
		kv[k] = v
	}
	return kv, nil
}

// defaultConfigPath читается, только если файл существует.
const defaultConfigPath = "/etc/gpsd-assistnow.yml"

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}
	return config.Load(path)
}

func usage(w io.Writer) {
	fmt.Fprintf(w, usageText, progName())
	flag.CommandLine.SetOutput(w)
	flag.PrintDefaults()
}

func progName() string {
	return strings.TrimSuffix(filepath.Base(os.Args[0]), ".exe")
}
