// Package cloud: клиент сервисов u-blox AssistNow.
//
// Регистрация устройства идёт через Thingstream (credentials), данные
// берутся по serviceUrl, выданному при регистрации. Для одноразового
// режима поддерживается прежний сервис AssistNow Online.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ant9000/gpsd-assistnow/internal/params"
)

// Адреса сервисов по умолчанию
const (
	DefaultCredentialsURL = "https://api.thingstream.io/ztp/assistnow/credentials"
	DefaultOnlineURL      = "https://online-live1.services.u-blox.com/GetOnlineData.ashx"
	DefaultTimeout        = 30 * time.Second
)

// Сколько байт тела ошибки сохраняется в тексте ошибки.
const errBodyLimit = 256

// Identity: данные устройства, выданные при регистрации.
type Identity struct {
	ChipCode    string   `yaml:"chipcode"`
	AllowedData []string `yaml:"allowed_data"`
	ServiceURL  string   `yaml:"service_url"`
}

// RegistrationError: сервис регистрации ответил не 2xx.
type RegistrationError struct {
	StatusCode int
	Body       string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registration failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// FetchError: сервис данных ответил не 2xx.
type FetchError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}

// Config: адреса и таймаут клиента.
type Config struct {
	CredentialsURL string
	OnlineURL      string
	Timeout        time.Duration
}

// Client: HTTP клиент AssistNow.
type Client struct {
	http           *http.Client
	credentialsURL string
	onlineURL      string
	log            zerolog.Logger
}

// NewClient создаёт клиента. Пустые поля Config берутся по умолчанию.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.CredentialsURL == "" {
		cfg.CredentialsURL = DefaultCredentialsURL
	}
	if cfg.OnlineURL == "" {
		cfg.OnlineURL = DefaultOnlineURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		http:           &http.Client{Timeout: cfg.Timeout},
		credentialsURL: cfg.CredentialsURL,
		onlineURL:      cfg.OnlineURL,
		log:            log,
	}
}

// WithHTTPClient подменяет *http.Client, например для прокси или TLS.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

type credentialsRequest struct {
	Token    string            `json:"token"`
	Messages map[string]string `json:"messages"`
}

type credentialsResponse struct {
	ChipCode    string `json:"chipcode"`
	AllowedData string `json:"allowedData"`
	ServiceURL  string `json:"serviceUrl"`
}

// Register регистрирует устройство по кадрам SEC-UNIQID и MON-VER в hex.
func (c *Client) Register(ctx context.Context, uniqueIDHex, monVerHex, token string) (Identity, error) {
	body, err := json.Marshal(credentialsRequest{
		Token: token,
		Messages: map[string]string{
			"UBX-SEC-UNIQID": uniqueIDHex,
			"UBX-MON-VER":    monVerHex,
		},
	})
	if err != nil {
		return Identity{}, fmt.Errorf("encode registration: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.credentialsURL, bytes.NewReader(body))
	if err != nil {
		return Identity{}, fmt.Errorf("registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug().Str("url", c.credentialsURL).Msg("registering device")
	status, data, err := c.do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("register: %w", err)
	}
	if status/100 != 2 {
		return Identity{}, &RegistrationError{StatusCode: status, Body: snippet(data)}
	}

	var resp credentialsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return Identity{}, fmt.Errorf("decode registration: %w", err)
	}
	if resp.ChipCode == "" || resp.ServiceURL == "" {
		return Identity{}, fmt.Errorf("decode registration: missing chipcode or serviceUrl")
	}
	return Identity{
		ChipCode:    resp.ChipCode,
		AllowedData: splitList(resp.AllowedData),
		ServiceURL:  resp.ServiceURL,
	}, nil
}

// FetchAssistance загружает данные с serviceUrl устройства.
func (c *Client) FetchAssistance(ctx context.Context, id Identity, p params.Params) ([]byte, error) {
	u, err := url.Parse(id.ServiceURL)
	if err != nil {
		return nil, fmt.Errorf("service url: %w", err)
	}
	q := u.Query()
	for k, vs := range p.Query() {
		q[k] = vs
	}
	q.Set("chipcode", id.ChipCode)
	u.RawQuery = q.Encode()

	c.log.Debug().Str("url", id.ServiceURL).Str("params", p.Tracked().String()).Msg("fetching assistance data")
	return c.get(ctx, u.String(), id.ServiceURL)
}

// FetchOnline загружает данные с прежнего сервиса AssistNow Online.
// Сервис ждёт параметры через ';', поэтому строка запроса не кодируется.
func (c *Client) FetchOnline(ctx context.Context, token string, p params.OnlineParams) ([]byte, error) {
	sep := "?"
	if strings.Contains(c.onlineURL, "?") {
		sep = ";"
	}
	c.log.Debug().Str("url", c.onlineURL).Msg("fetching online data")
	return c.get(ctx, c.onlineURL+sep+p.Query(token), c.onlineURL)
}

// get выполняет GET; shown: адрес для ошибок и логов, без секретов.
func (c *Client) get(ctx context.Context, target, shown string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch request: %w", err)
	}
	status, data, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", shown, err)
	}
	if status/100 != 2 {
		return nil, &FetchError{URL: shown, StatusCode: status, Body: snippet(data)}
	}
	c.log.Debug().Int("bytes", len(data)).Msg("fetched")
	return data, nil
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > errBodyLimit {
		s = s[:errBodyLimit] + "..."
	}
	return s
}
