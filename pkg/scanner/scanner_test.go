package scanner

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/norasector/p25scanner/pkg/calllog"
	"github.com/norasector/p25scanner/pkg/events"
	"github.com/norasector/p25scanner/pkg/scanner/device"
	"github.com/norasector/p25scanner/pkg/trunking"
	"github.com/norasector/p25scanner/pkg/util"
	"github.com/norasector/turbine-common/types"
	"github.com/rs/zerolog"
)

const testSampleRate = 2048000

type faultyDriver struct {
	starts int
	stops  int
}

func (f *faultyDriver) Start(ctx context.Context, centerFreq int, sampleRate int, out chan<- *types.SegmentComplex64) error {
	f.starts++
	return errors.New("usb transfer failed")
}

func (f *faultyDriver) SetFrequency(hz int) error { return nil }
func (f *faultyDriver) SetSampleRate(hz int) error { return nil }
func (f *faultyDriver) SetGain(g device.Gain) error { return nil }
func (f *faultyDriver) MaxSampleRate() int { return 3200000 }
func (f *faultyDriver) Stop() error { f.stops++; return nil }

func newTestScanner(t *testing.T, options Options, opts ...ScannerOption) *Scanner {
	t.Helper()
	if options.SampleRate == 0 {
		options.SampleRate = testSampleRate
	}
	if options.Timing == (Timing{}) {
		options.Timing = DefaultTiming()
	}
	opts = append([]ScannerOption{WithLogger(zerolog.Nop())}, opts...)
	s, err := NewScanner(&faultyDriver{}, testPlan(), options, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNewScannerValidation(t *testing.T) {
	if _, err := NewScanner(&faultyDriver{}, testPlan(), Options{}); err == nil {
		t.Error("missing sample rate accepted")
	}
	if _, err := NewScanner(&faultyDriver{}, &trunking.ChannelPlan{}, Options{SampleRate: testSampleRate}); err == nil {
		t.Error("empty control list accepted")
	}
	if _, err := NewScanner(&faultyDriver{}, testPlan(), Options{SampleRate: testSampleRate},
		WithEventSink("log", events.NewLogSink(zerolog.Nop())),
		WithEventSink("log", events.NewLogSink(zerolog.Nop())),
	); err == nil {
		t.Error("duplicate sink name accepted")
	}
}

func TestRunDeviceRetries(t *testing.T) {
	drv := &faultyDriver{}
	s, err := NewScanner(drv, testPlan(), Options{
		SampleRate:      testSampleRate,
		Timing:          DefaultTiming(),
		HardwareRetries: 2,
		RetryDelay:      time.Millisecond,
	}, WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	ch := s.bus.Subscribe("test", 16)

	err = s.runDevice(context.Background(), controlHz)
	if !errors.Is(err, device.ErrHardwareFault) {
		t.Fatalf("runDevice() = %v, want hardware fault", err)
	}
	if drv.starts != 3 || drv.stops != 2 {
		t.Errorf("starts = %d, stops = %d", drv.starts, drv.stops)
	}

	s.bus.Close()
	var counts []uint64
	for ev := range ch {
		if ev.Kind == events.HardwareFault {
			counts = append(counts, ev.Count)
		}
	}
	if len(counts) != 3 || counts[2] != 3 {
		t.Errorf("HardwareFault counts = %v", counts)
	}
}

func TestProcessBlock(t *testing.T) {
	metrics := &util.MockWriteAPI{}
	s := newTestScanner(t, Options{}, WithInfluxDB(metrics))
	s.sm.Start(t0)

	if err := s.processBlock(&device.SampleBlock{Frequency: controlHz, Unreliable: true}); err != nil {
		t.Fatal(err)
	}
	if len(metrics.Points()) != 0 {
		t.Error("unreliable block was processed")
	}

	b := &device.SampleBlock{
		Samples:    &types.SegmentComplex64{Data: make([]complex64, 8192)},
		Frequency:  controlHz,
		SampleRate: testSampleRate,
		Timestamp:  t0,
	}
	if err := s.processBlock(b); err != nil {
		t.Fatal(err)
	}

	st := s.Stats()
	if st.Blocks != 2 || st.UnreliableBlocks != 1 || st.LossOfSignal != 1 || st.Symbols != 0 {
		t.Errorf("Stats() = %+v", st)
	}
	points := metrics.Points()
	if len(points) != 1 || points[0].Name() != "channel.processed" {
		t.Errorf("points = %v", points)
	}
}

func getStatus(t *testing.T, s *Scanner) statusResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest("GET", "/status", nil), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestStatusHandler(t *testing.T) {
	s := newTestScanner(t, Options{})
	ch := s.bus.Subscribe("test", 16)

	if resp := getStatus(t, s); resp.State.Mode != "idle" {
		t.Errorf("before start state = %+v", resp.State)
	}

	s.sm.Start(t0)
	s.sm.HandleDecoded(tsbkFrame(controlHz, grantTG(100, 237)), at(100*time.Millisecond))

	// state only reaches the endpoint through published events
	if resp := getStatus(t, s); resp.State.Mode != "idle" {
		t.Errorf("state read around the bus: %+v", resp.State)
	}
	s.bus.Close()
	for ev := range ch {
		if err := s.status.Handle(ev); err != nil {
			t.Fatal(err)
		}
	}

	resp := getStatus(t, s)
	if resp.State.Mode != "following_voice" || resp.State.Frequency != voiceHz {
		t.Errorf("state = %+v", resp.State)
	}
	if len(resp.Grants) != 1 || resp.Grants[0].Talkgroup != 100 {
		t.Errorf("grants = %+v", resp.Grants)
	}
	if resp.Neighbors == nil {
		t.Error("neighbors should encode as an empty list")
	}
}

func TestCallsHandler(t *testing.T) {
	s := newTestScanner(t, Options{})
	rec := httptest.NewRecorder()
	s.handleCalls(rec, httptest.NewRequest("GET", "/calls", nil), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("without call log: code = %d", rec.Code)
	}

	w, err := calllog.Open(t.TempDir() + "/calls.db")
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	s = newTestScanner(t, Options{}, WithCallLog(w))

	tests := []struct {
		query string
		code  int
	}{
		{"", http.StatusOK},
		{"?limit=10", http.StatusOK},
		{"?limit=5000", http.StatusOK},
		{"?limit=0", http.StatusBadRequest},
		{"?limit=abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		s.handleCalls(rec, httptest.NewRequest("GET", "/calls"+tt.query, nil), nil)
		if rec.Code != tt.code {
			t.Errorf("GET /calls%s: code = %d, want %d", tt.query, rec.Code, tt.code)
		}
	}
}
