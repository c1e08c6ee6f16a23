package ubx

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestChecksum(t *testing.T) {
	// MON-VER poll: B5 62 0A 04 00 00 0E 34
	ckA, ckB := Checksum([]byte{0x0A, 0x04, 0x00, 0x00})
	if ckA != 0x0E || ckB != 0x34 {
		t.Errorf("got %02X %02X want 0E 34", ckA, ckB)
	}
}

func TestEncodePacket(t *testing.T) {
	got, err := EncodePacket(ClassMON, IDMONVER, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0xB5, 0x62, 0x0A, 0x04, 0x00, 0x00, 0x0E, 0x34}
	if !bytes.Equal(got, want) {
		t.Errorf("got % X want % X", got, want)
	}

	t.Run("payload too large", func(t *testing.T) {
		_, err := EncodePacket(0x01, 0x02, make([]byte, MaxPayloadSize+1))
		if !errors.Is(err, ErrPayloadTooLarge) {
			t.Errorf("expected ErrPayloadTooLarge, got %v", err)
		}
	})

	t.Run("max payload", func(t *testing.T) {
		raw, err := EncodePacket(0x01, 0x02, make([]byte, MaxPayloadSize))
		if err != nil {
			t.Fatal(err)
		}
		if len(raw) != MaxPayloadSize+FrameOverhead {
			t.Errorf("len=%d", len(raw))
		}
	})
}

func TestDecodeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	sizes := []int{0, 1, 2, 20, 255, 256, 1000, MaxPayloadSize}
	for _, n := range sizes {
		payload := make([]byte, n)
		rng.Read(payload)
		class, id := uint8(rng.Intn(256)), uint8(rng.Intn(256))
		raw, err := EncodePacket(class, id, payload)
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		res := Decode(raw)
		if res.Packet == nil {
			t.Fatalf("n=%d: no packet", n)
		}
		if res.Consumed != FrameOverhead+n {
			t.Errorf("n=%d: consumed=%d want %d", n, res.Consumed, FrameOverhead+n)
		}
		if res.Packet.Class != class || res.Packet.ID != id {
			t.Errorf("n=%d: got %v", n, res.Packet)
		}
		if !bytes.Equal(res.Packet.Payload, payload) {
			t.Errorf("n=%d: payload mismatch", n)
		}
		if !bytes.Equal(res.Packet.Raw, raw) {
			t.Errorf("n=%d: raw mismatch", n)
		}
		if len(res.Remainder) != 0 {
			t.Errorf("n=%d: remainder=%d", n, len(res.Remainder))
		}
	}
}

func TestDecodeChecksumMismatch(t *testing.T) {
	raw, _ := EncodePacket(ClassSEC, IDSECUNIQID, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9})
	for _, pos := range []int{len(raw) - 2, len(raw) - 1} {
		for bit := 0; bit < 8; bit++ {
			bad := append([]byte(nil), raw...)
			bad[pos] ^= 1 << bit
			res := Decode(bad)
			if res.Packet != nil {
				t.Errorf("pos=%d bit=%d: expected dropped packet", pos, bit)
			}
			if res.Consumed != len(raw) {
				t.Errorf("pos=%d bit=%d: consumed=%d want %d", pos, bit, res.Consumed, len(raw))
			}
		}
	}
}

func TestDecodeIncomplete(t *testing.T) {
	raw, _ := EncodePacket(ClassMON, IDMONVER, []byte("ROM CORE 3.01 (107888)"))
	for i := 0; i < len(raw); i++ {
		res := Decode(raw[:i])
		if res.Consumed != 0 || res.Packet != nil {
			t.Fatalf("prefix %d: consumed=%d packet=%v", i, res.Consumed, res.Packet)
		}
	}
}

func TestDecodeStreamingSplit(t *testing.T) {
	raw, _ := EncodePacket(ClassMGA, IDMGAINI, bytes.Repeat([]byte{0xB5, 0x62, 0x00}, 10))
	whole := Decode(raw)
	if whole.Packet == nil {
		t.Fatal("whole buffer did not decode")
	}
	for cut := 0; cut <= len(raw); cut++ {
		var acc []byte
		acc = append(acc, raw[:cut]...)
		first := Decode(acc)
		if first.Packet != nil && cut < len(raw) {
			t.Fatalf("cut=%d: packet from partial buffer", cut)
		}
		acc = acc[first.Consumed:]
		acc = append(acc, raw[cut:]...)
		second := Decode(acc)
		got := first.Packet
		if got == nil {
			got = second.Packet
		}
		if diff := cmp.Diff(whole.Packet, got); diff != "" {
			t.Fatalf("cut=%d: (-whole +split)\n%s", cut, diff)
		}
	}
}

func TestDecodeResync(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	raw, _ := EncodePacket(ClassSEC, IDSECUNIQID, []byte{1, 0, 0, 0, 0xDE, 0xAD, 0xBE, 0xEF, 0x01})

	for _, n := range []int{1, 2, 17, 500} {
		noise := make([]byte, n)
		rng.Read(noise)
		for i := range noise {
			if noise[i] == Sync1 {
				noise[i] = 0
			}
		}
		buf := append(noise, raw...)

		total := 0
		var got *Packet
		for steps := 0; len(buf) > 0 && steps < len(noise)+len(raw)+1; steps++ {
			res := Decode(buf)
			if res.Consumed > len(buf) {
				t.Fatalf("n=%d: consumed %d > buffer %d", n, res.Consumed, len(buf))
			}
			if res.Consumed == 0 {
				break
			}
			total += res.Consumed
			buf = res.Remainder
			if res.Packet != nil && res.Packet.Is(ClassSEC, IDSECUNIQID) {
				got = res.Packet
				break
			}
		}
		if got == nil {
			t.Fatalf("n=%d: packet not found", n)
		}
		if total < n+len(raw) {
			t.Errorf("n=%d: total consumed %d < %d", n, total, n+len(raw))
		}

		// Пропуск шума по одному байту приводит к тому же пакету.
		if first := Decode(append(noise, raw...)); first.Consumed != n || first.Packet != nil {
			t.Errorf("n=%d: noise run consumed %d, want %d", n, first.Consumed, n)
		}
		buf = append(noise, raw...)
		total, got = 0, nil
		for steps := 0; len(buf) > 0 && steps < len(noise)+len(raw)+1; steps++ {
			res := Decode(buf)
			if res.Consumed == 0 {
				break
			}
			step := res.Consumed
			if res.Packet == nil {
				step = 1
			}
			total += step
			buf = buf[step:]
			if res.Packet != nil && res.Packet.Is(ClassSEC, IDSECUNIQID) {
				got = res.Packet
				break
			}
		}
		if got == nil {
			t.Fatalf("n=%d: packet not found stepping byte by byte", n)
		}
		if total < n+len(raw) {
			t.Errorf("n=%d: byte-step total consumed %d < %d", n, total, n+len(raw))
		}
	}
}

func TestDecodeNoiseOnly(t *testing.T) {
	t.Run("no sync", func(t *testing.T) {
		noise := []byte{0x00, 0x24, 0x47, 0x50, 0x0D, 0x0A, 0x62}
		res := Decode(noise)
		if res.Consumed != len(noise) || res.Packet != nil {
			t.Errorf("consumed=%d packet=%v", res.Consumed, res.Packet)
		}
		if res := Decode(res.Remainder); res.Consumed != 0 {
			t.Errorf("empty buffer consumed=%d", res.Consumed)
		}
	})
	t.Run("trailing half sync kept", func(t *testing.T) {
		noise := []byte{0x01, 0x02, Sync1}
		res := Decode(noise)
		if res.Consumed != 2 {
			t.Errorf("consumed=%d want 2", res.Consumed)
		}
		if !bytes.Equal(res.Remainder, []byte{Sync1}) {
			t.Errorf("remainder=% X", res.Remainder)
		}
		if res := Decode(res.Remainder); res.Consumed != 0 {
			t.Errorf("lone sync consumed=%d", res.Consumed)
		}
	})
	t.Run("noise before packet", func(t *testing.T) {
		raw, _ := EncodePacket(ClassMON, IDMONVER, nil)
		buf := append([]byte("$GNRMC,,V*00\r\n"), raw...)
		res := Decode(buf)
		if res.Consumed != len(buf)-len(raw) || res.Packet != nil {
			t.Errorf("consumed=%d packet=%v", res.Consumed, res.Packet)
		}
	})
}

func TestSplit(t *testing.T) {
	a, _ := EncodePacket(ClassMGA, IDMGAINI, make([]byte, MGAINISize))
	b, _ := EncodePacket(0x13, 0x00, []byte{1, 2, 3})
	bad, _ := EncodePacket(0x13, 0x00, []byte{4, 5, 6})
	bad[len(bad)-1] ^= 0xFF

	var stream []byte
	stream = append(stream, a...)
	stream = append(stream, 0x00, 0x11)
	stream = append(stream, bad...)
	stream = append(stream, b...)
	stream = append(stream, Sync1, Sync2, 0x13)

	packets, dropped, rest := Split(stream)
	if len(packets) != 2 {
		t.Fatalf("packets=%d want 2", len(packets))
	}
	if !bytes.Equal(packets[0].Raw, a) || !bytes.Equal(packets[1].Raw, b) {
		t.Error("unexpected packet contents")
	}
	if dropped != 2 {
		t.Errorf("dropped=%d want 2", dropped)
	}
	if !bytes.Equal(rest, []byte{Sync1, Sync2, 0x13}) {
		t.Errorf("rest=% X", rest)
	}
}
