package p25

import (
	"errors"
	"reflect"
	"testing"
)

func TestTSBKRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"group grant", GroupVoiceGrant{Options: 0x80, Channel: MakeChannel(1, 237), Group: 100, Source: 1234567}},
		{"grant update", GroupVoiceGrantUpdate{ChannelA: 0x1001, GroupA: 100, ChannelB: 0x1002, GroupB: 200}},
		{"grant update explicit", GroupVoiceGrantUpdateExplicit{Options: 0x40, TxChannel: 0x2010, RxChannel: 0x2011, Group: 300}},
		{"unit grant", UnitVoiceGrant{Channel: 0x10ED, Target: 0xABCDEF, Source: 0x123456}},
		{"iden up", IdentifierUpdate{Identifier: 1, BandwidthHz: 12500, TxOffsetHz: -45000000, SpacingHz: 6250, BaseHz: 851006250}},
		{"iden up vu", IdentifierUpdate{Identifier: 2, BandwidthHz: 6250, TxOffsetHz: 5000000, SpacingHz: 12500, BaseHz: 136000000, VU: true}},
		{"rfss status", RFSSStatus{LRA: 1, SystemID: 0x3AB, RFSS: 2, Site: 7, Channel: 0x1001, ServiceClass: 0x70}},
		{"network status", NetworkStatus{LRA: 1, WACN: 0xBEE00, SystemID: 0x3AB, Channel: 0x1001, ServiceClass: 0x70}},
		{"adjacent status", AdjacentStatus{LRA: 1, SystemID: 0x3AB, RFSS: 2, Site: 9, Channel: 0x1010, ServiceClass: 0x70}},
		{"unknown", Unknown{Op: 0x2F, Args: 0x0102030405060708}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block := EncodeTSBK(tt.msg, true)
			got, errs, err := DecodeTSBK(block)
			if err != nil {
				t.Fatalf("DecodeTSBK() error = %v", err)
			}
			if errs != 0 || !got.LastBlock || got.Opcode != tt.msg.Opcode() {
				t.Errorf("DecodeTSBK() header = %+v errs %d", got, errs)
			}
			if !reflect.DeepEqual(got.Message, tt.msg) {
				t.Errorf("DecodeTSBK() message = %+v, want %+v", got.Message, tt.msg)
			}
		})
	}
}

func TestTSBKCRC(t *testing.T) {
	bits := make([]byte, 80)
	putBits(bits[16:], GroupVoiceGrant{Channel: 1, Group: 2, Source: 3}.args(), 64)
	framed := AppendCRC16(bits)
	framed[40] ^= 1
	if _, _, err := DecodeTSBK(TrellisEncode(framed)); !errors.Is(err, ErrCRC) {
		t.Errorf("DecodeTSBK() = %v, want ErrCRC", err)
	}
}

func TestTSBKManufacturerSpecific(t *testing.T) {
	bits := make([]byte, 80)
	putBits(bits[8:], 0x90, 8)
	putBits(bits[16:], GroupVoiceGrant{Channel: 1, Group: 2, Source: 3}.args(), 64)
	got, err := ParseTSBK(AppendCRC16(bits))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.Message.(Unknown); !ok {
		t.Errorf("ParseTSBK() message = %T, want Unknown", got.Message)
	}
}

func TestIdentifierFrequency(t *testing.T) {
	iden := IdentifierUpdate{Identifier: 1, SpacingHz: 6250, BaseHz: 851006250}
	tests := []struct {
		number uint16
		want   int
	}{
		{1, 851012500},
		{237, 852487500},
	}
	for _, tt := range tests {
		if got := iden.Frequency(tt.number); got != tt.want {
			t.Errorf("Frequency(%d) = %d, want %d", tt.number, got, tt.want)
		}
	}
	if iden, number := ChannelNumber(MakeChannel(1, 237)); iden != 1 || number != 237 {
		t.Errorf("ChannelNumber() = %d, %d", iden, number)
	}
}
