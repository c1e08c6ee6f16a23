package ubx

import (
	"bytes"
	"encoding/hex"
	"strings"
)

// MON-VER payload: swVersion[30], hwVersion[10], затем extension[30] * N
const (
	monVerSW  = 30
	monVerHW  = 10
	monVerExt = 30
)

// Version: разобранный ответ MON-VER.
type Version struct {
	Software   string
	Hardware   string
	Extensions []string
}

// ParseMonVer разбирает payload MON-VER.
func ParseMonVer(payload []byte) (Version, bool) {
	if len(payload) < monVerSW+monVerHW {
		return Version{}, false
	}
	v := Version{
		Software: cString(payload[:monVerSW]),
		Hardware: cString(payload[monVerSW : monVerSW+monVerHW]),
	}
	for off := monVerSW + monVerHW; off+monVerExt <= len(payload); off += monVerExt {
		if ext := cString(payload[off : off+monVerExt]); ext != "" {
			v.Extensions = append(v.Extensions, ext)
		}
	}
	return v, true
}

// Extension ищет расширение с префиксом вида "PROTVER=" и возвращает значение.
func (v Version) Extension(key string) (string, bool) {
	prefix := key + "="
	for _, e := range v.Extensions {
		if strings.HasPrefix(e, prefix) {
			return strings.TrimPrefix(e, prefix), true
		}
	}
	return "", false
}

// SEC-UNIQID payload: version(1), reserved(3), uniqueId(5; 6 у version 2)
const secUniqIDOffset = 4

// ParseUniqID возвращает уникальный ID чипа в hex (верхний регистр).
func ParseUniqID(payload []byte) (string, bool) {
	if len(payload) < secUniqIDOffset+5 {
		return "", false
	}
	return strings.ToUpper(hex.EncodeToString(payload[secUniqIDOffset:])), true
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}
