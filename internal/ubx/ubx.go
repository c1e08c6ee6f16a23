// Package ubx: кодек бинарного протокола u-blox UBX.
//
// Кодек чистый: без ввода-вывода и без состояния между вызовами. Всё
// состояние потокового разбора живёт в буфере вызывающей стороны.
package ubx

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Sync bytes для UBX протокола
const (
	Sync1 = 0xB5
	Sync2 = 0x62
)

// Размеры кадра: sync(2) + class + id + length(2), затем payload и checksum(2)
const (
	HeaderSize     = 6
	ChecksumSize   = 2
	FrameOverhead  = HeaderSize + ChecksumSize
	MaxPayloadSize = 0xFFFF
)

// ErrPayloadTooLarge: payload не помещается в 16-битное поле длины.
var ErrPayloadTooLarge = errors.New("ubx: payload too large")

// Packet: один UBX пакет. Raw хранит полный кадр для пересылки как есть.
type Packet struct {
	Class   uint8
	ID      uint8
	Payload []byte
	CkA     uint8
	CkB     uint8
	Raw     []byte
}

// Is проверяет адрес пакета (class, id).
func (p *Packet) Is(class, id uint8) bool {
	return p != nil && p.Class == class && p.ID == id
}

func (p *Packet) String() string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprintf("UBX 0x%02X/0x%02X len=%d", p.Class, p.ID, len(p.Payload))
}

// Checksum вычисляет UBX контрольную сумму (без sync bytes)
func Checksum(data []byte) (ckA, ckB uint8) {
	for _, b := range data {
		ckA += b
		ckB += ckA
	}
	return ckA, ckB
}

// NewPacket собирает пакет вместе с кадром и контрольной суммой.
func NewPacket(class, id uint8, payload []byte) (Packet, error) {
	if len(payload) > MaxPayloadSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	buf := make([]byte, 0, FrameOverhead+len(payload))
	buf = append(buf, Sync1, Sync2, class, id)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(payload)))
	buf = append(buf, payload...)
	ckA, ckB := Checksum(buf[2:])
	buf = append(buf, ckA, ckB)
	return Packet{
		Class:   class,
		ID:      id,
		Payload: buf[HeaderSize : HeaderSize+len(payload)],
		CkA:     ckA,
		CkB:     ckB,
		Raw:     buf,
	}, nil
}

// EncodePacket собирает полный UBX пакет: header + payload + checksum
func EncodePacket(class, id uint8, payload []byte) ([]byte, error) {
	p, err := NewPacket(class, id, payload)
	if err != nil {
		return nil, err
	}
	return p.Raw, nil
}

// DecodeResult: итог одного шага разбора.
//
// Consumed > 0 при Packet == nil означает пропущенный шум или пакет с
// неверной контрольной суммой. Consumed == 0 означает неполный пакет в
// начале буфера: нужно дочитать байты.
type DecodeResult struct {
	Consumed  int
	Packet    *Packet
	Remainder []byte
}

// Decode разбирает не более одного пакета из начала buf.
func Decode(buf []byte) DecodeResult {
	idx := findSync(buf)
	if idx < 0 {
		n := len(buf)
		// Одиночный 0xB5 в конце может оказаться началом sync.
		if n > 0 && buf[n-1] == Sync1 {
			n--
		}
		return DecodeResult{Consumed: n, Remainder: buf[n:]}
	}
	if idx > 0 {
		return DecodeResult{Consumed: idx, Remainder: buf[idx:]}
	}

	if len(buf) < HeaderSize {
		return DecodeResult{Remainder: buf}
	}
	length := int(binary.LittleEndian.Uint16(buf[4:6]))
	total := FrameOverhead + length
	if len(buf) < total {
		return DecodeResult{Remainder: buf}
	}

	frame := buf[:total:total]
	ckA, ckB := Checksum(frame[2 : HeaderSize+length])
	res := DecodeResult{Consumed: total, Remainder: buf[total:]}
	if frame[total-2] != ckA || frame[total-1] != ckB {
		return res
	}

	raw := make([]byte, total)
	copy(raw, frame)
	res.Packet = &Packet{
		Class:   raw[2],
		ID:      raw[3],
		Payload: raw[HeaderSize : HeaderSize+length],
		CkA:     ckA,
		CkB:     ckB,
		Raw:     raw,
	}
	return res
}

// Split режет поток на пакеты так же, как это делает отправка на приёмник:
// по одному пакету за шаг, до первого Consumed == 0. Возвращает пакеты,
// число отброшенных участков и неразобранный хвост.
func Split(data []byte) (packets []*Packet, dropped int, rest []byte) {
	for len(data) > 0 {
		res := Decode(data)
		if res.Consumed == 0 {
			break
		}
		if res.Packet != nil {
			packets = append(packets, res.Packet)
		} else {
			dropped++
		}
		data = res.Remainder
	}
	return packets, dropped, data
}

func findSync(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == Sync1 && buf[i+1] == Sync2 {
			return i
		}
	}
	return -1
}
