package phase1

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/norasector/p25scanner/pkg/p25"
	"github.com/rs/zerolog"
)

const testNAC = 0x293

func toSymbols(d []p25.Dibit) []p25.Symbol {
	ret := make([]p25.Symbol, len(d))
	for i := range d {
		ret[i] = p25.Symbol{Dibit: d[i], Confidence: 1}
	}
	return ret
}

func randomDibits(rnd *rand.Rand, n int) []p25.Dibit {
	ret := make([]p25.Dibit, n)
	for i := range ret {
		ret[i] = p25.Dibit(rnd.Intn(4))
	}
	return ret
}

type collector struct {
	frames []*Frame
}

func (c *collector) emit(f *Frame) {
	c.frames = append(c.frames, f)
}

func newTestAssembler() (*Assembler, *collector) {
	c := &collector{}
	return NewAssembler(DefaultMaxSyncErrors, c.emit, zerolog.Nop()), c
}

func feed(a *Assembler, d []p25.Dibit, chunk int) {
	for len(d) > 0 {
		n := chunk
		if n > len(d) {
			n = len(d)
		}
		a.Receive(p25.SymbolBlock{Symbols: toSymbols(d[:n]), Frequency: 851012500})
		d = d[n:]
	}
}

func TestAssemblerTSBK(t *testing.T) {
	msgs := []p25.Message{
		p25.GroupVoiceGrant{Channel: p25.MakeChannel(1, 237), Group: 100, Source: 4321},
		p25.IdentifierUpdate{Identifier: 1, BandwidthHz: 12500, TxOffsetHz: -45000000, SpacingHz: 6250, BaseHz: 851006250},
	}
	rnd := rand.New(rand.NewSource(3))
	stream := append(randomDibits(rnd, 57), EncodeTSBKFrame(testNAC, msgs...)...)
	stream = append(stream, randomDibits(rnd, 40)...)

	for _, chunk := range []int{1, 7, 1000} {
		a, c := newTestAssembler()
		feed(a, stream, chunk)
		if len(c.frames) != 1 {
			t.Fatalf("chunk %d: got %d frames, want 1", chunk, len(c.frames))
		}
		f := c.frames[0]
		if f.Err != nil || f.NID != (p25.NID{NAC: testNAC, DUID: p25.DUIDTSBK}) {
			t.Fatalf("chunk %d: frame NID = %+v err %v", chunk, f.NID, f.Err)
		}
		if len(f.Payload) != 2*p25.TrellisBlockDibits || f.Frequency != 851012500 {
			t.Fatalf("chunk %d: payload %d dibits at %d", chunk, len(f.Payload), f.Frequency)
		}

		dec, err := NewDecoder().Decode(f)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if len(dec.TSBKs) != 2 {
			t.Fatalf("Decode() got %d tsbks", len(dec.TSBKs))
		}
		for i, m := range msgs {
			if !reflect.DeepEqual(dec.TSBKs[i].Message, m) {
				t.Errorf("tsbk %d = %+v, want %+v", i, dec.TSBKs[i].Message, m)
			}
		}
	}
}

func TestAssemblerSyncErrors(t *testing.T) {
	frame := EncodeTSBKFrame(testNAC, p25.RFSSStatus{LRA: 1, SystemID: 0x3AB, RFSS: 1, Site: 1, Channel: 0x1001})
	tests := []struct {
		name   string
		errors int
		found  bool
	}{
		{"clean", 0, true},
		{"one", 1, true},
		{"four", 4, true},
		{"five", 5, false},
		{"eight", 8, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := append([]p25.Dibit{}, frame...)
			for i := 0; i < tt.errors; i++ {
				stream[i*3] ^= 1
			}
			a, c := newTestAssembler()
			feed(a, stream, 64)
			if tt.found != (len(c.frames) == 1) {
				t.Fatalf("got %d frames, want found=%v", len(c.frames), tt.found)
			}
			if tt.found && c.frames[0].SyncErrors != tt.errors {
				t.Errorf("SyncErrors = %d, want %d", c.frames[0].SyncErrors, tt.errors)
			}
		})
	}
}

func TestAssemblerNoFalseSync(t *testing.T) {
	rnd := rand.New(rand.NewSource(25))
	a, c := newTestAssembler()
	feed(a, randomDibits(rnd, 200000), 4800)
	if len(c.frames) != 0 {
		t.Errorf("got %d frames from noise", len(c.frames))
	}
	if a.SymbolsSinceSync() != 200000 {
		t.Errorf("SymbolsSinceSync() = %d", a.SymbolsSinceSync())
	}
}

func TestAssemblerNIDErrors(t *testing.T) {
	payload := p25.EncodeTSBK(p25.NetworkStatus{LRA: 1, WACN: 0xBEE00, SystemID: 0x3AB, Channel: 0x1001}, true)
	word := p25.EncodeNID(p25.NID{NAC: testNAC, DUID: p25.DUIDTSBK})

	tests := []struct {
		name    string
		mask    uint64
		wantErr bool
		errs    int
	}{
		{"eleven errors", 0x0000022222222222, false, 11},
		{"beyond capacity", 0x2420044a052044b8, true, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, c := newTestAssembler()
			d := NewDecoder()
			feed(a, encodeFrameWord(word^tt.mask, payload), 50)

			if len(c.frames) != 1 {
				t.Fatalf("got %d frames, want 1", len(c.frames))
			}
			f := c.frames[0]
			if f.NIDErrors != tt.errs {
				t.Errorf("NIDErrors = %d, want %d", f.NIDErrors, tt.errs)
			}
			_, err := d.Decode(f)
			if tt.wantErr != (err != nil) {
				t.Fatalf("Decode() error = %v", err)
			}
			counters := d.Counters()
			if tt.wantErr {
				if !errors.Is(err, ErrNID) {
					t.Errorf("Decode() error = %v, want ErrNID", err)
				}
				if counters.NIDErrors != 1 || counters.Frames[p25.DUIDTSBK] != 0 {
					t.Errorf("counters = %+v", counters)
				}
			} else if counters.NIDErrors != 0 || counters.Frames[p25.DUIDTSBK] != 1 {
				t.Errorf("counters = %+v", counters)
			}
		})
	}
}

func TestAssemblerLossOfSignal(t *testing.T) {
	frame := EncodeTSBKFrame(testNAC, p25.RFSSStatus{LRA: 1, SystemID: 0x3AB, RFSS: 1, Site: 1, Channel: 0x1001})
	a, c := newTestAssembler()

	feed(a, frame[:100], 100)
	a.Receive(p25.SymbolBlock{LossOfSignal: true})
	feed(a, frame[100:], 100)
	if len(c.frames) != 0 {
		t.Fatalf("got %d frames across loss of signal", len(c.frames))
	}

	feed(a, frame, 100)
	if len(c.frames) != 1 {
		t.Errorf("got %d frames after recovery, want 1", len(c.frames))
	}
}

func TestAssemblerResyncMidFrame(t *testing.T) {
	grant := p25.GroupVoiceGrant{Channel: p25.MakeChannel(1, 237), Group: 100, Source: 1}
	first := EncodeTSBKFrame(testNAC, grant)
	second := EncodeTSBKFrame(testNAC, grant)

	// the first frame is cut short by the next sync
	a, c := newTestAssembler()
	feed(a, append(append([]p25.Dibit{}, first[:90]...), second...), 33)
	if len(c.frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(c.frames))
	}
	if len(c.frames[0].Payload) != p25.TrellisBlockDibits {
		t.Errorf("payload = %d dibits", len(c.frames[0].Payload))
	}
}
