// Package config: конфигурация assistnow.
//
// Порядок источников: значения по умолчанию, YAML файл, переменные
// окружения ASSISTNOW_*; флаги командной строки применяет main.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ant9000/gpsd-assistnow/internal/cloud"
	"github.com/ant9000/gpsd-assistnow/internal/receiver"
	"github.com/ant9000/gpsd-assistnow/internal/transport"
)

// EnvPrefix: префикс переменных окружения (ASSISTNOW_DEVICE и т.д.)
const EnvPrefix = "ASSISTNOW"

// Config: конфигурация assistnow
type Config struct {
	// Транспорт до приёмника: gpsd или serial
	Transport string `mapstructure:"transport"`
	Device    string `mapstructure:"device"`
	GPSD      string `mapstructure:"gpsd"`
	Baud      int    `mapstructure:"baud"`

	// Каталог assistnow.yml и assistnow.cache
	StateDir string `mapstructure:"state_dir"`

	// Ожидание ответа приёмника и пауза опроса
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// Срок годности кэша в часах (строкой, как в key=value)
	CacheDuration string `mapstructure:"cache_duration"`

	CredentialsURL string        `mapstructure:"credentials_url"`
	OnlineURL      string        `mapstructure:"online_url"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
}

// Default возвращает конфиг по умолчанию
func Default() *Config {
	return &Config{
		Transport:      transport.KindGPSD,
		GPSD:           transport.DefaultGPSDAddr,
		Baud:           transport.DefaultBaud,
		StateDir:       defaultStateDir(),
		Timeout:        receiver.DefaultTimeout,
		PollInterval:   receiver.DefaultPollInterval,
		CacheDuration:  "3",
		CredentialsURL: cloud.DefaultCredentialsURL,
		OnlineURL:      cloud.DefaultOnlineURL,
		HTTPTimeout:    cloud.DefaultTimeout,
	}
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "assistnow")
	}
	return "."
}

// Load читает конфиг: path может быть пустым, тогда только умолчания и
// окружение.
func Load(path string) (*Config, error) {
	v := viper.New()
	d := Default()
	v.SetDefault("transport", d.Transport)
	v.SetDefault("device", d.Device)
	v.SetDefault("gpsd", d.GPSD)
	v.SetDefault("baud", d.Baud)
	v.SetDefault("state_dir", d.StateDir)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("cache_duration", d.CacheDuration)
	v.SetDefault("credentials_url", d.CredentialsURL)
	v.SetDefault("online_url", d.OnlineURL)
	v.SetDefault("http_timeout", d.HTTPTimeout)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate проверяет значения, которые нельзя исправить умолчаниями.
func (c *Config) Validate() error {
	switch c.Transport {
	case transport.KindGPSD, transport.KindSerial:
	default:
		return fmt.Errorf("config: unknown transport %q", c.Transport)
	}
	if c.Baud < 0 {
		return fmt.Errorf("config: invalid baud %d", c.Baud)
	}
	if c.Timeout < 0 || c.PollInterval < 0 || c.HTTPTimeout < 0 {
		return fmt.Errorf("config: negative timeout")
	}
	return nil
}

// TransportConfig возвращает настройки транспорта.
func (c *Config) TransportConfig() transport.Config {
	return transport.Config{
		Kind:         c.Transport,
		Device:       c.Device,
		Baud:         c.Baud,
		GPSDAddr:     c.GPSD,
		PollInterval: c.PollInterval,
	}
}

// CloudConfig возвращает настройки клиента AssistNow.
func (c *Config) CloudConfig() cloud.Config {
	return cloud.Config{
		CredentialsURL: c.CredentialsURL,
		OnlineURL:      c.OnlineURL,
		Timeout:        c.HTTPTimeout,
	}
}

func applyDefaults(c *Config) {
	d := Default()
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	if c.Transport == "" {
		c.Transport = d.Transport
	}
	if c.GPSD == "" {
		c.GPSD = d.GPSD
	}
	if c.Baud == 0 {
		c.Baud = d.Baud
	}
	if c.StateDir == "" {
		c.StateDir = d.StateDir
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = d.PollInterval
	}
	if c.CacheDuration == "" {
		c.CacheDuration = d.CacheDuration
	}
	if c.CredentialsURL == "" {
		c.CredentialsURL = d.CredentialsURL
	}
	if c.OnlineURL == "" {
		c.OnlineURL = d.OnlineURL
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = d.HTTPTimeout
	}
}
