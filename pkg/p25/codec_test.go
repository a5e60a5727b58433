package p25

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"
)

func TestEncodeNID(t *testing.T) {
	if got := EncodeNID(NID{NAC: 0x293, DUID: DUIDTSBK}); got != 0x2937f88514abaecc {
		t.Errorf("EncodeNID() = %#x, want %#x", got, uint64(0x2937f88514abaecc))
	}
}

func TestDecodeNID(t *testing.T) {
	word := EncodeNID(NID{NAC: 0x293, DUID: DUIDTSBK})

	tests := []struct {
		name     string
		errMask  uint64
		want     NID
		wantErrs int
		wantErr  error
	}{
		{"clean", 0, NID{NAC: 0x293, DUID: DUIDTSBK}, 0, nil},
		{"parity only", 1, NID{NAC: 0x293, DUID: DUIDTSBK}, 0, nil},
		{"one error", 1 << 40, NID{NAC: 0x293, DUID: DUIDTSBK}, 1, nil},
		{"eleven errors", 1<<1 | 1<<5 | 1<<9 | 1<<13 | 1<<17 | 1<<21 | 1<<25 | 1<<29 | 1<<33 | 1<<37 | 1<<41,
			NID{NAC: 0x293, DUID: DUIDTSBK}, 11, nil},
		{"beyond capacity", 0x2420044a052044b8, NID{}, 15, ErrUncorrectable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, errs, err := DecodeNID(word ^ tt.errMask)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("DecodeNID() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want || errs != tt.wantErrs {
				t.Errorf("DecodeNID() = %+v, %d, want %+v, %d", got, errs, tt.want, tt.wantErrs)
			}
		})
	}
}

func TestNIDDibitRoundTrip(t *testing.T) {
	word := EncodeNID(NID{NAC: 0xABC, DUID: DUIDLDU2})
	if got := NIDFromDibits(NIDToDibits(word)); got != word {
		t.Errorf("NIDFromDibits() = %#x, want %#x", got, word)
	}
}

func TestCRC16(t *testing.T) {
	if got := CRC16(BytesToBits([]byte("123456789"))); got != 0xCE3C {
		t.Errorf("CRC16() = %#04x, want 0xce3c", got)
	}

	data := BytesToBits([]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09})
	framed := AppendCRC16(data)
	if err := CheckCRC16(framed); err != nil {
		t.Fatalf("CheckCRC16() = %v", err)
	}
	framed[3] ^= 1
	if err := CheckCRC16(framed); !errors.Is(err, ErrCRC) {
		t.Errorf("CheckCRC16() on corrupt data = %v, want ErrCRC", err)
	}
}

func randomBits(r *rand.Rand, n int) []byte {
	ret := make([]byte, n)
	for i := range ret {
		ret[i] = byte(r.Intn(2))
	}
	return ret
}

func TestTrellis(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	data := randomBits(r, 96)

	block := TrellisEncode(data)
	if len(block) != TrellisBlockDibits {
		t.Fatalf("TrellisEncode() len = %d", len(block))
	}
	got, errs := TrellisDecode(block)
	if !reflect.DeepEqual(got, data) || errs != 0 {
		t.Fatalf("clean TrellisDecode() errs = %d, data mismatch = %v", errs, !reflect.DeepEqual(got, data))
	}

	t.Run("single dibit errors", func(t *testing.T) {
		for pos := 0; pos < TrellisBlockDibits; pos++ {
			for flip := Dibit(1); flip < 4; flip++ {
				corrupt := append([]Dibit(nil), block...)
				corrupt[pos] ^= flip
				if got, _ := TrellisDecode(corrupt); !reflect.DeepEqual(got, data) {
					t.Fatalf("position %d flip %d not corrected", pos, flip)
				}
			}
		}
	})

	t.Run("separated dibit errors", func(t *testing.T) {
		for _, pair := range [][2]int{{0, 97}, {20, 50}} {
			corrupt := append([]Dibit(nil), block...)
			corrupt[pair[0]] ^= 3
			corrupt[pair[1]] ^= 1
			if got, _ := TrellisDecode(corrupt); !reflect.DeepEqual(got, data) {
				t.Errorf("errors at %v not corrected", pair)
			}
		}
	})
}

func TestGolay(t *testing.T) {
	for _, data := range []uint16{0, 1, 0x555, 0xABC, 0xFFF} {
		cw := GolayEncode23(data)
		for _, mask := range []uint32{0, 1, 1<<22 | 1, 1<<3 | 1<<11 | 1<<19} {
			got, n := GolayDecode23(cw ^ mask)
			if got != data {
				t.Errorf("GolayDecode23(%#x ^ %#x) = %#x, want %#x", cw, mask, got, data)
			}
			if want := popcount(mask); n != want {
				t.Errorf("GolayDecode23() errors = %d, want %d", n, want)
			}
		}
	}

	t.Run("extended", func(t *testing.T) {
		cw := GolayEncode24(0x5A5)
		if got, _, err := GolayDecode24(cw ^ 1<<7); err != nil || got != 0x5A5 {
			t.Errorf("GolayDecode24() = %#x, %v", got, err)
		}
		if _, _, err := GolayDecode24(cw ^ (1<<1 | 1<<5 | 1<<9 | 1<<13)); !errors.Is(err, ErrUncorrectable) {
			t.Errorf("GolayDecode24() with four errors = %v, want ErrUncorrectable", err)
		}
	})

	t.Run("shortened", func(t *testing.T) {
		for data := uint8(0); data < 64; data++ {
			cw := GolayEncode18(data)
			if cw>>18 != 0 {
				t.Fatalf("GolayEncode18(%d) overflows: %#x", data, cw)
			}
			got, _, err := GolayDecode18(cw ^ 1<<17 ^ 1<<4)
			if err != nil || got != data {
				t.Errorf("GolayDecode18() = %d, %v, want %d", got, err, data)
			}
		}
	})
}

func popcount(v uint32) int {
	n := 0
	for ; v != 0; v &= v - 1 {
		n++
	}
	return n
}

func TestHamming(t *testing.T) {
	for data := uint8(0); data < 64; data++ {
		cw := HammingEncode10(data)
		for bit := 0; bit < 10; bit++ {
			got, n, err := HammingDecode10(cw ^ 1<<uint(bit))
			if err != nil || got != data || n != 1 {
				t.Fatalf("HammingDecode10(%d bit %d) = %d, %d, %v", data, bit, got, n, err)
			}
		}
	}

	for _, data := range []uint16{0, 0x7FF, 0x2AA, 0x123} {
		cw := HammingEncode15(data)
		if got, n, err := HammingDecode15(cw); err != nil || got != data || n != 0 {
			t.Errorf("HammingDecode15(clean) = %#x, %d, %v", got, n, err)
		}
		for bit := 0; bit < 15; bit++ {
			if got, _, _ := HammingDecode15(cw ^ 1<<uint(bit)); got != data {
				t.Errorf("HammingDecode15(%#x bit %d) = %#x", data, bit, got)
			}
		}
	}
}

func TestReedSolomon(t *testing.T) {
	t.Run("known codeword", func(t *testing.T) {
		want := []uint8{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 26, 33, 46, 33, 12, 58, 60, 23, 17, 40, 1, 58}
		if got := RS24_12.Encode([]uint8{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}); !reflect.DeepEqual(got, want) {
			t.Errorf("Encode() = %v, want %v", got, want)
		}
	})

	r := rand.New(rand.NewSource(2))
	for _, code := range []*ReedSolomon{RS24_12, RS24_16, RS36_20} {
		code := code
		t.Run(fmt.Sprintf("RS(%d,%d)", code.N, code.K), func(t *testing.T) {
			capacity := (code.N - code.K) / 2
			for trial := 0; trial < 50; trial++ {
				data := make([]uint8, code.K)
				for i := range data {
					data[i] = uint8(r.Intn(64))
				}
				cw := code.Encode(data)
				nerr := trial % (capacity + 1)
				for _, pos := range r.Perm(code.N)[:nerr] {
					cw[pos] ^= uint8(1 + r.Intn(63))
				}
				got, n, err := code.Decode(cw)
				if err != nil {
					t.Fatalf("RS(%d,%d) with %d errors: %v", code.N, code.K, nerr, err)
				}
				if !reflect.DeepEqual(got, data) || n != nerr {
					t.Fatalf("RS(%d,%d) corrected %d of %d errors, data match %v",
						code.N, code.K, n, nerr, reflect.DeepEqual(got, data))
				}
			}
		})
	}
}
