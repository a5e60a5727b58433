package hackrf

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	"github.com/norasector/p25scanner/pkg/scanner/device"
	"github.com/norasector/turbine-common/types"
	"github.com/samuel/go-hackrf/hackrf"
)

const (
	maxSampleRate = 20e6
	maxLNAGain    = 40
	maxVGAGain    = 62
)

func (h *HackRFDevice) MaxSampleRate() int {
	return maxSampleRate
}

type HackRFDevice struct {
	device *hackrf.Device

	mu         sync.Mutex
	centerFreq int
	sampleRate int
	gain       device.Gain

	outputChan chan<- *types.SegmentComplex64
	ctx        context.Context
	dropped    atomic.Uint64

	outputFile *os.File
}

// NewRecordingHackRFDevice also writes the raw cs8 stream to recordLocation so it can be
// replayed with the file driver.
func NewRecordingHackRFDevice(recordLocation string, gain device.Gain) (*HackRFDevice, error) {
	h, err := NewHackRFDevice(gain)
	if err != nil {
		return nil, err
	}
	outFile, err := os.Create(recordLocation)
	if err != nil {
		h.device.Close()
		return nil, err
	}
	h.outputFile = outFile
	return h, nil
}

func NewHackRFDevice(gain device.Gain) (*HackRFDevice, error) {
	if err := hackrf.Init(); err != nil {
		return nil, err
	}
	dev, err := hackrf.Open()
	if err != nil {
		return nil, err
	}
	return &HackRFDevice{device: dev, gain: gain}, nil
}

func (h *HackRFDevice) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *HackRFDevice) callback(buf []byte) error {
	if h.outputFile != nil {
		if _, err := h.outputFile.Write(buf); err != nil {
			return err
		}
	}
	h.mu.Lock()
	seg := types.SegmentCS8Raw{
		SampleRate: h.sampleRate,
		Data:       make([]byte, len(buf)),
		Frequency:  h.centerFreq,
	}
	h.mu.Unlock()
	copy(seg.Data, buf)

	select {
	case <-h.ctx.Done():
		return h.ctx.Err()
	case h.outputChan <- seg.ToComplex64():
	default:
		h.dropped.Add(1)
	}
	return nil
}

func (h *HackRFDevice) Start(ctx context.Context, centerFreq int, sampleRate int, out chan<- *types.SegmentComplex64) error {
	h.ctx = ctx
	h.outputChan = out
	if err := h.SetFrequency(centerFreq); err != nil {
		return err
	}
	if err := h.SetSampleRate(sampleRate); err != nil {
		return err
	}
	if err := h.SetGain(h.gain); err != nil {
		return err
	}
	if err := h.device.SetAmpEnable(true); err != nil {
		return err
	}
	if err := h.device.StartRX(h.callback); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (h *HackRFDevice) SetFrequency(hz int) error {
	if err := h.device.SetFreq(uint64(hz)); err != nil {
		return err
	}
	h.mu.Lock()
	h.centerFreq = hz
	h.mu.Unlock()
	return nil
}

func (h *HackRFDevice) SetSampleRate(hz int) error {
	if err := h.device.SetSampleRateManual(hz*2, 2); err != nil {
		return err
	}
	if err := h.device.SetBasebandFilterBandwidth(hz); err != nil {
		return err
	}
	h.mu.Lock()
	h.sampleRate = hz
	h.mu.Unlock()
	return nil
}

// SetGain splits a manual gain between the LNA (8 dB steps) and the baseband VGA
// (2 dB steps). Auto uses the fixed LNA setting the device ships with.
func (h *HackRFDevice) SetGain(g device.Gain) error {
	h.gain = g
	lna, vga := 32, 20
	if !g.Auto {
		lna, vga = splitGain(g.TenthsDB / 10)
	}
	if err := h.device.SetLNAGain(lna); err != nil {
		return err
	}
	return h.device.SetVGAGain(vga)
}

func splitGain(db int) (lna, vga int) {
	if db < 0 {
		db = 0
	}
	lna = db / 8 * 8
	if lna > maxLNAGain {
		lna = maxLNAGain
	}
	vga = (db - lna) / 2 * 2
	if vga > maxVGAGain {
		vga = maxVGAGain
	}
	return lna, vga
}

func (h *HackRFDevice) Stop() error {
	if h.outputFile != nil {
		defer h.outputFile.Close()
	}
	if err := h.device.StopRX(); err != nil {
		return err
	}
	return h.device.Close()
}
