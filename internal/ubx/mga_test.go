package ubx

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestPositionAidLLH(t *testing.T) {
	p, err := PositionAidLLH(52.0, 4.3, 10, 5)
	if err != nil {
		t.Fatal(err)
	}
	if p.Class != ClassMGA || p.ID != IDMGAINI {
		t.Fatalf("got %v", &p)
	}
	if len(p.Payload) != MGAINISize {
		t.Fatalf("payload len=%d want %d", len(p.Payload), MGAINISize)
	}
	if p.Payload[0] != 0x01 || p.Payload[1] != 0x00 || p.Payload[2] != 0 || p.Payload[3] != 0 {
		t.Errorf("header bytes % X", p.Payload[:4])
	}
	if got := int32(binary.LittleEndian.Uint32(p.Payload[4:8])); got != 520000000 {
		t.Errorf("lat=%d", got)
	}
	if got := int32(binary.LittleEndian.Uint32(p.Payload[8:12])); got != 43000000 {
		t.Errorf("lon=%d", got)
	}
	if got := int32(binary.LittleEndian.Uint32(p.Payload[12:16])); got != 1000 {
		t.Errorf("alt=%d", got)
	}
	if got := binary.LittleEndian.Uint32(p.Payload[16:20]); got != 5000000 {
		t.Errorf("acc=%d", got)
	}
	if res := Decode(p.Raw); res.Packet == nil || res.Consumed != len(p.Raw) {
		t.Errorf("encoded aid does not decode: %+v", res)
	}
}

func TestPositionAidLLHTruncation(t *testing.T) {
	tests := []struct {
		name          string
		lat, lon, alt float64
		pacc          float64
		want          PositionAid
	}{
		{"southwest", -33.5, -151.25, -12.345, 0.5,
			PositionAid{Lat: -335000000, Lon: -1512500000, Alt: -1234, PAcc: 500000}},
		{"limits", 90, 180, 50000, DefaultPAccKm,
			PositionAid{Lat: 900000000, Lon: 1800000000, Alt: 5000000, PAcc: 300000000}},
		{"pacc saturates", 0, 0, 0, 6000000,
			PositionAid{PAcc: math.MaxUint32}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := PositionAidLLH(tt.lat, tt.lon, tt.alt, tt.pacc)
			if err != nil {
				t.Fatal(err)
			}
			got, ok := ParsePositionAid(p.Payload)
			if !ok {
				t.Fatal("expected ok")
			}
			if got != tt.want {
				t.Errorf("got %+v want %+v", got, tt.want)
			}
		})
	}
}

func TestParsePositionAidShort(t *testing.T) {
	if _, ok := ParsePositionAid(make([]byte, 10)); ok {
		t.Error("expected !ok for short payload")
	}
}
