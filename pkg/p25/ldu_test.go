package p25

import (
	"errors"
	"reflect"
	"testing"
)

func testVoice() [9][IMBECodewordBits]byte {
	var voice [9][IMBECodewordBits]byte
	for i := range voice {
		for j := range voice[i] {
			voice[i][j] = byte((i*7 + j*3) % 5 % 2)
		}
	}
	return voice
}

func TestLDU1(t *testing.T) {
	voice := testVoice()
	lc := LinkControl{LCO: LCOGroupVoice, Options: 0x00, Talkgroup: 100, Source: 4242}
	payload := EncodeLDU(DUIDLDU1, voice, lc, EncryptionSync{})
	if len(payload) != PayloadDibits(DUIDLDU1) {
		t.Fatalf("EncodeLDU() len = %d, want %d", len(payload), PayloadDibits(DUIDLDU1))
	}

	// corrupt a couple of LC bits; hamming and RS should absorb them
	payload[144] ^= 1
	payload[240] ^= 2

	ldu, _, err := DecodeLDU(DUIDLDU1, payload)
	if err != nil {
		t.Fatalf("DecodeLDU() error = %v", err)
	}
	if ldu.LC == nil || !reflect.DeepEqual(*ldu.LC, lc) {
		t.Errorf("DecodeLDU() LC = %v, want %v", ldu.LC, lc)
	}
	if !reflect.DeepEqual(ldu.Voice[0], voice[0]) || !reflect.DeepEqual(ldu.Voice[8], voice[8]) {
		t.Errorf("DecodeLDU() voice codewords differ")
	}
}

func TestLDU2(t *testing.T) {
	tests := []struct {
		name      string
		es        EncryptionSync
		encrypted bool
	}{
		{"clear", EncryptionSync{AlgorithmID: AlgorithmClear}, false},
		{"aes", EncryptionSync{MI: [9]byte{1, 2, 3, 4, 5, 6, 7, 8, 9}, AlgorithmID: 0x84, KeyID: 0x1234}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := EncodeLDU(DUIDLDU2, testVoice(), LinkControl{}, tt.es)
			ldu, _, err := DecodeLDU(DUIDLDU2, payload)
			if err != nil {
				t.Fatalf("DecodeLDU() error = %v", err)
			}
			if ldu.ES == nil || !reflect.DeepEqual(*ldu.ES, tt.es) {
				t.Fatalf("DecodeLDU() ES = %+v, want %+v", ldu.ES, tt.es)
			}
			if ldu.ES.Encrypted() != tt.encrypted {
				t.Errorf("Encrypted() = %v, want %v", ldu.ES.Encrypted(), tt.encrypted)
			}
		})
	}
}

func TestLDUBadSignalling(t *testing.T) {
	payload := EncodeLDU(DUIDLDU1, testVoice(), LinkControl{Talkgroup: 5}, EncryptionSync{})
	// wreck every LC block
	for _, off := range lduLCOffsets {
		for i := 0; i < lduLCBlockBits/2; i++ {
			payload[off/2+i] ^= 3
		}
	}
	ldu, _, err := DecodeLDU(DUIDLDU1, payload)
	if err == nil {
		t.Fatal("DecodeLDU() expected signalling error")
	}
	if ldu == nil || ldu.LC != nil {
		t.Fatalf("DecodeLDU() = %+v, want voice without LC", ldu)
	}
	if !reflect.DeepEqual(ldu.Voice[3], testVoice()[3]) {
		t.Errorf("voice not preserved")
	}
}

func TestHeader(t *testing.T) {
	h := Header{MI: [9]byte{9, 8, 7, 6, 5, 4, 3, 2, 1}, MFID: 0, AlgorithmID: AlgorithmClear, KeyID: 0, Talkgroup: 100}
	payload := EncodeHeader(h)
	if len(payload) != PayloadDibits(DUIDHeader) {
		t.Fatalf("EncodeHeader() len = %d", len(payload))
	}
	payload[10] ^= 1
	payload[200] ^= 2
	got, _, err := DecodeHeader(payload)
	if err != nil {
		t.Fatalf("DecodeHeader() error = %v", err)
	}
	if !reflect.DeepEqual(got, h) || got.Encrypted() {
		t.Errorf("DecodeHeader() = %+v, want %+v", got, h)
	}
}

func TestTerminatorLC(t *testing.T) {
	lc := LinkControl{LCO: LCOCallTermination}
	payload := EncodeTerminatorLC(lc)
	if len(payload) != PayloadDibits(DUIDTerminatorLC) {
		t.Fatalf("EncodeTerminatorLC() len = %d", len(payload))
	}
	payload[5] ^= 3
	got, _, err := DecodeTerminatorLC(payload)
	if err != nil {
		t.Fatalf("DecodeTerminatorLC() error = %v", err)
	}
	if got.LCO != LCOCallTermination {
		t.Errorf("DecodeTerminatorLC() LCO = %#x", got.LCO)
	}

	if _, _, err := DecodeTerminatorLC(payload[:10]); err == nil {
		t.Error("DecodeTerminatorLC() on short payload should fail")
	}
}

func TestDecodeLDUWrongSize(t *testing.T) {
	_, _, err := DecodeLDU(DUIDLDU1, make([]Dibit, 10))
	if err == nil || errors.Is(err, ErrUncorrectable) {
		t.Errorf("DecodeLDU() error = %v", err)
	}
}
