// Package params: проверка параметров запроса данных AssistNow.
//
// Значения приходят строками из командной строки или из сохранённого
// состояния. Списки разделяются запятыми, числа разбираются как float64.
package params

import (
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ant9000/gpsd-assistnow/internal/ubx"
)

// Ключи параметров
const (
	KeyData          = "data"
	KeyGNSS          = "gnss"
	KeyLat           = "lat"
	KeyLon           = "lon"
	KeyAlt           = "alt"
	KeyPAcc          = "pacc"
	KeyFilterOnPos   = "filteronpos"
	KeyCacheDuration = "cache_duration"
	KeyDataType      = "datatype"
	KeyFormat        = "format"
	KeyTAcc          = "tacc"
	KeyLatency       = "latency"
)

// TrackedKeys: параметры, изменение которых делает кэш недействительным.
var TrackedKeys = []string{KeyData, KeyGNSS, KeyLat, KeyLon, KeyAlt, KeyPAcc, KeyFilterOnPos}

// Допустимые значения
var (
	GNSSChoices     = []string{"gps", "glo", "gal", "bds", "qzss"}
	DataTypeChoices = []string{"eph", "alm", "aux", "pos"}
	FormatChoices   = []string{"mga", "aid"}
)

// DefaultCacheDuration: срок годности кэша по умолчанию.
const DefaultCacheDuration = 3 * time.Hour

// MaxCacheHours: верхняя граница cache_duration.
const MaxCacheHours = 24

// ValidationError: недопустимое значение параметра.
type ValidationError struct {
	Key   string
	Value string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid value %q; %s", e.Key, e.Value, e.Msg)
}

// bounds: диапазоны чисел, нужны для текста ошибки.
var bounds = map[string][2]float64{
	KeyLat:           {-90, 90},
	KeyLon:           {-180, 180},
	KeyAlt:           {-1000, 50000},
	KeyPAcc:          {0, 6000000},
	KeyTAcc:          {0, 3600},
	KeyLatency:       {0, 3600},
	KeyCacheDuration: {0, MaxCacheHours},
}

// Position: начальная позиция для MGA-INI-POS_LLH.
type Position struct {
	Lat  *float64 `key:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lon  *float64 `key:"lon" validate:"omitempty,gte=-180,lte=180"`
	Alt  *float64 `key:"alt" validate:"omitempty,gte=-1000,lte=50000"`
	PAcc *float64 `key:"pacc" validate:"omitempty,gte=0,lte=6000000"`
}

// HasPosition: заданы и широта, и долгота.
func (p Position) HasPosition() bool {
	return p.Lat != nil && p.Lon != nil
}

// Aid собирает пакет начальной позиции. ok == false, если позиции нет.
// Без alt и pacc берутся 0 м и ubx.DefaultPAccKm.
func (p Position) Aid() (pkt ubx.Packet, ok bool, err error) {
	if !p.HasPosition() {
		return ubx.Packet{}, false, nil
	}
	alt, pacc := 0.0, float64(ubx.DefaultPAccKm)
	if p.Alt != nil {
		alt = *p.Alt
	}
	if p.PAcc != nil {
		pacc = *p.PAcc
	}
	pkt, err = ubx.PositionAidLLH(*p.Lat, *p.Lon, alt, pacc)
	if err != nil {
		return ubx.Packet{}, false, err
	}
	return pkt, true, nil
}

func (p Position) put(put func(k, v string)) {
	for _, f := range []struct {
		key string
		v   *float64
	}{{KeyLat, p.Lat}, {KeyLon, p.Lon}, {KeyAlt, p.Alt}, {KeyPAcc, p.PAcc}} {
		if f.v != nil {
			put(f.key, FormatNumber(*f.v))
		}
	}
}

// Params: проверенные параметры запроса к сервису AssistNow.
type Params struct {
	Data []string
	GNSS []string
	Position
}

// Tracked: отслеживаемые параметры в строковом виде. Ключи без значения
// отсутствуют.
type Tracked map[string]string

// Equal сравнивает наборы параметров.
func (t Tracked) Equal(o Tracked) bool {
	if len(t) != len(o) {
		return false
	}
	for k, v := range t {
		if ov, ok := o[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func (t Tracked) String() string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+t[k])
	}
	return strings.Join(parts, " ")
}

// Tracked возвращает отслеживаемые параметры.
func (p Params) Tracked() Tracked {
	t := Tracked{}
	if len(p.Data) > 0 {
		t[KeyData] = strings.Join(p.Data, ",")
	}
	if len(p.GNSS) > 0 {
		t[KeyGNSS] = strings.Join(p.GNSS, ",")
	}
	p.Position.put(func(k, v string) { t[k] = v })
	if p.HasPosition() {
		t[KeyFilterOnPos] = "1"
	}
	return t
}

// Query возвращает параметры HTTP запроса (без chipcode).
func (p Params) Query() url.Values {
	q := url.Values{}
	for k, v := range p.Tracked() {
		q.Set(k, v)
	}
	return q
}

// HasTracked сообщает, есть ли в raw хотя бы один отслеживаемый ключ.
func HasTracked(raw map[string]string) bool {
	for _, k := range TrackedKeys {
		if _, ok := raw[k]; ok {
			return true
		}
	}
	return false
}

// Parse проверяет параметры запроса. allowedData: типы данных, выданные
// устройству при регистрации. Неизвестные ключи игнорируются.
func Parse(raw map[string]string, allowedData []string) (Params, error) {
	var p Params
	var err error
	if p.Data, err = parseList(raw, KeyData, allowedData); err != nil {
		return Params{}, err
	}
	if p.GNSS, err = parseList(raw, KeyGNSS, GNSSChoices); err != nil {
		return Params{}, err
	}
	if p.Position, err = parsePosition(raw); err != nil {
		return Params{}, err
	}
	return p, nil
}

// CacheDuration разбирает cache_duration в часах. Пустое значение даёт
// DefaultCacheDuration.
func CacheDuration(raw string) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return DefaultCacheDuration, nil
	}
	var v struct {
		Hours *float64 `key:"cache_duration" validate:"omitempty,gte=0,lte=24"`
	}
	var err error
	if v.Hours, err = parseNumber(KeyCacheDuration, raw); err != nil {
		return 0, err
	}
	if err := check(&v, map[string]string{KeyCacheDuration: raw}); err != nil {
		return 0, err
	}
	return time.Duration(*v.Hours * float64(time.Hour)), nil
}

// OnlineParams: параметры прежнего сервиса AssistNow Online.
type OnlineParams struct {
	DataType []string
	Format   string
	GNSS     []string
	Position
	TAcc    *float64 `key:"tacc" validate:"omitempty,gte=0,lte=3600"`
	Latency *float64 `key:"latency" validate:"omitempty,gte=0,lte=3600"`
}

// ParseOnline проверяет параметры одноразового запроса к сервису Online.
func ParseOnline(raw map[string]string) (OnlineParams, error) {
	var p OnlineParams
	var err error
	if p.DataType, err = parseList(raw, KeyDataType, DataTypeChoices); err != nil {
		return OnlineParams{}, err
	}
	if v, ok := raw[KeyFormat]; ok && v != "" {
		if err := validate.Var(v, oneOf(FormatChoices)); err != nil {
			return OnlineParams{}, unknownValue(KeyFormat, v, FormatChoices)
		}
		p.Format = v
	}
	if p.GNSS, err = parseList(raw, KeyGNSS, GNSSChoices); err != nil {
		return OnlineParams{}, err
	}
	if p.Position, err = parsePosition(raw); err != nil {
		return OnlineParams{}, err
	}
	if p.TAcc, err = optionalNumber(raw, KeyTAcc); err != nil {
		return OnlineParams{}, err
	}
	if p.Latency, err = optionalNumber(raw, KeyLatency); err != nil {
		return OnlineParams{}, err
	}
	if err := check(&p, raw); err != nil {
		return OnlineParams{}, err
	}
	return p, nil
}

// Query собирает строку запроса сервиса Online: пары через ';' в
// фиксированном порядке и флаг filteronpos, если задана позиция.
func (p OnlineParams) Query(token string) string {
	var parts []string
	put := func(k, v string) { parts = append(parts, k+"="+v) }
	put("token", token)
	if len(p.DataType) > 0 {
		put(KeyDataType, strings.Join(p.DataType, ","))
	}
	if p.Format != "" {
		put(KeyFormat, p.Format)
	}
	if len(p.GNSS) > 0 {
		put(KeyGNSS, strings.Join(p.GNSS, ","))
	}
	p.Position.put(put)
	for _, f := range []struct {
		key string
		v   *float64
	}{{KeyTAcc, p.TAcc}, {KeyLatency, p.Latency}} {
		if f.v != nil {
			put(f.key, FormatNumber(*f.v))
		}
	}
	q := strings.Join(parts, ";")
	if p.HasPosition() {
		q += ";" + KeyFilterOnPos
	}
	return q
}

// FormatNumber печатает число без лишних нулей: 52, 4.3, -0.5.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("key")
	})
	return v
}

func parsePosition(raw map[string]string) (Position, error) {
	var p Position
	for _, f := range []struct {
		key string
		dst **float64
	}{{KeyLat, &p.Lat}, {KeyLon, &p.Lon}, {KeyAlt, &p.Alt}, {KeyPAcc, &p.PAcc}} {
		v, err := optionalNumber(raw, f.key)
		if err != nil {
			return Position{}, err
		}
		*f.dst = v
	}
	if err := check(&p, raw); err != nil {
		return Position{}, err
	}
	return p, nil
}

func parseList(raw map[string]string, key string, choices []string) ([]string, error) {
	s, ok := raw[key]
	if !ok || strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if len(choices) == 0 || strings.ContainsAny(item, " \t") {
			return nil, unknownValue(key, item, choices)
		}
		if err := validate.Var(item, "required,"+oneOf(choices)); err != nil {
			return nil, unknownValue(key, item, choices)
		}
		out = append(out, item)
	}
	return out, nil
}

// optionalNumber: отсутствующий ключ даёт nil, пустое значение ошибку.
func optionalNumber(raw map[string]string, key string) (*float64, error) {
	s, ok := raw[key]
	if !ok {
		return nil, nil
	}
	return parseNumber(key, s)
}

func parseNumber(key, s string) (*float64, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, &ValidationError{Key: key, Value: s, Msg: "not a number"}
	}
	return &v, nil
}

// check прогоняет теги validate и превращает первую ошибку в ValidationError.
func check(s interface{}, raw map[string]string) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err
	}
	key := verrs[0].Field()
	value := strings.TrimSpace(raw[key])
	b, ok := bounds[key]
	if !ok {
		return &ValidationError{Key: key, Value: value, Msg: "failed " + verrs[0].Tag()}
	}
	return &ValidationError{
		Key:   key,
		Value: value,
		Msg:   fmt.Sprintf("not in [%s, %s]", FormatNumber(b[0]), FormatNumber(b[1])),
	}
}

func oneOf(choices []string) string {
	return "oneof=" + strings.Join(choices, " ")
}

func unknownValue(key, v string, choices []string) error {
	return &ValidationError{
		Key:   key,
		Value: v,
		Msg:   "valid choices are: " + strings.Join(choices, ", "),
	}
}
