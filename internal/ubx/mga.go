package ubx

import (
	"encoding/binary"
	"math"
)

// MGA class и ID (u-blox)
const (
	ClassMGA     = 0x13
	IDMGAINI     = 0x40 // MGA-INI-*: начальные данные (позиция, время)
	MGAINISize   = 20
	mgaIniPosLLH = 0x01 // тип сообщения POS_LLH
)

// DefaultPAccKm: точность начальной позиции, если не задана (км).
const DefaultPAccKm = 300

// MGA-INI-POS_LLH payload layout (20 байт)
// Offset 0:  type (1) = 0x01
// Offset 1:  version (1) = 0x00
// Offset 2:  reserved (2)
// Offset 4:  lat (4, int32), 1e-7 град
// Offset 8:  lon (4, int32), 1e-7 град
// Offset 12: alt (4, int32), см
// Offset 16: posAcc (4, uint32), мм
const (
	mgaLat  = 4
	mgaLon  = 8
	mgaAlt  = 12
	mgaPAcc = 16
)

// PositionAidLLH собирает UBX-MGA-INI-POS_LLH из координат в градусах,
// высоты в метрах и точности в километрах. Значения усекаются к нулю.
func PositionAidLLH(latDeg, lonDeg, altM, paccKm float64) (Packet, error) {
	payload := make([]byte, MGAINISize)
	payload[0] = mgaIniPosLLH
	payload[1] = 0 // version
	binary.LittleEndian.PutUint32(payload[mgaLat:], uint32(int32(latDeg*1e7)))
	binary.LittleEndian.PutUint32(payload[mgaLon:], uint32(int32(lonDeg*1e7)))
	binary.LittleEndian.PutUint32(payload[mgaAlt:], uint32(int32(altM*1e2)))
	binary.LittleEndian.PutUint32(payload[mgaPAcc:], accMM(paccKm))
	return NewPacket(ClassMGA, IDMGAINI, payload)
}

// accMM переводит км в мм с насыщением: поле posAcc беззнаковое 32-битное.
func accMM(km float64) uint32 {
	mm := km * 1e6
	switch {
	case mm <= 0 || math.IsNaN(mm):
		return 0
	case mm >= math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(mm)
}

// PositionAid: разобранный POS_LLH, в единицах протокола.
type PositionAid struct {
	Lat  int32
	Lon  int32
	Alt  int32
	PAcc uint32
}

// ParsePositionAid разбирает payload MGA-INI-POS_LLH.
func ParsePositionAid(payload []byte) (PositionAid, bool) {
	if len(payload) < MGAINISize || payload[0] != mgaIniPosLLH {
		return PositionAid{}, false
	}
	return PositionAid{
		Lat:  int32(binary.LittleEndian.Uint32(payload[mgaLat:])),
		Lon:  int32(binary.LittleEndian.Uint32(payload[mgaLon:])),
		Alt:  int32(binary.LittleEndian.Uint32(payload[mgaAlt:])),
		PAcc: binary.LittleEndian.Uint32(payload[mgaPAcc:]),
	}, true
}
