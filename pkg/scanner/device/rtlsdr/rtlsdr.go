package rtlsdr

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	gsdr "github.com/jpoirier/gortlsdr"
	"github.com/norasector/p25scanner/pkg/scanner/device"
	"github.com/norasector/turbine-common/types"
)

const (
	maxSampleRate = 2400000

	// librtlsdr defaults to 15 buffers of 128k samples, over a second of stale
	// samples after a retune
	asyncBufNum = 4
	asyncBufLen = 32768 // bytes, two per sample
)

type RTLSDRDevice struct {
	deviceIdx int
	ppm       int
	device    *gsdr.Context

	mu         sync.Mutex
	centerFreq int
	sampleRate int
	gain       device.Gain

	outputChan chan<- *types.SegmentComplex64
	ctx        context.Context
	wg         sync.WaitGroup
	dropped    atomic.Uint64
}

func NewRTLSDRDevice(deviceIdx int, ppm int, gain device.Gain) (*RTLSDRDevice, error) {
	if deviceIdx >= gsdr.GetDeviceCount() {
		return nil, fmt.Errorf("rtlsdr: no device at index %d", deviceIdx)
	}
	return &RTLSDRDevice{deviceIdx: deviceIdx, ppm: ppm, gain: gain}, nil
}

func (r *RTLSDRDevice) MaxSampleRate() int {
	return maxSampleRate
}

// Dropped counts callback buffers discarded because the consumer was not ready.
func (r *RTLSDRDevice) Dropped() uint64 {
	return r.dropped.Load()
}

// BufferedSamples is the depth of the USB transfer queue.
func (r *RTLSDRDevice) BufferedSamples() int {
	return asyncBufNum * asyncBufLen / 2
}

func (r *RTLSDRDevice) callback(buf []byte) {
	r.wg.Add(1)
	defer r.wg.Done()

	r.mu.Lock()
	seg := types.SegmentCS8Raw{
		SampleRate: r.sampleRate,
		Data:       make([]byte, len(buf)),
		Frequency:  r.centerFreq,
	}
	r.mu.Unlock()
	copy(seg.Data, buf)

	select {
	case <-r.ctx.Done():
	case r.outputChan <- seg.ToComplex64():
	default:
		r.dropped.Add(1)
	}
}

func (r *RTLSDRDevice) Start(ctx context.Context, centerFreq int, sampleRate int, out chan<- *types.SegmentComplex64) error {
	var err error
	r.device, err = gsdr.Open(r.deviceIdx)
	if err != nil {
		return err
	}
	r.ctx = ctx
	r.outputChan = out

	if err := r.SetSampleRate(sampleRate); err != nil {
		return err
	}
	if err := r.SetFrequency(centerFreq); err != nil {
		return err
	}
	if r.ppm != 0 {
		if err := r.device.SetFreqCorrection(r.ppm); err != nil {
			return err
		}
	}
	if err := r.SetGain(r.gain); err != nil {
		return err
	}
	if err := r.device.ResetBuffer(); err != nil {
		return err
	}

	r.wg.Add(1)
	defer r.wg.Done()
	return r.device.ReadAsync(r.callback, nil, asyncBufNum, asyncBufLen)
}

func (r *RTLSDRDevice) SetFrequency(hz int) error {
	if err := r.device.SetCenterFreq(hz); err != nil {
		return err
	}
	r.mu.Lock()
	r.centerFreq = hz
	r.mu.Unlock()
	return nil
}

func (r *RTLSDRDevice) SetSampleRate(hz int) error {
	if err := r.device.SetSampleRate(hz); err != nil {
		return err
	}
	r.mu.Lock()
	r.sampleRate = hz
	r.mu.Unlock()
	return nil
}

func (r *RTLSDRDevice) SetGain(g device.Gain) error {
	r.gain = g
	if g.Auto {
		return r.device.SetTunerGainMode(false)
	}
	if err := r.device.SetTunerGainMode(true); err != nil {
		return err
	}
	gains, err := r.device.GetTunerGains()
	if err != nil {
		return err
	}
	return r.device.SetTunerGain(nearestGain(gains, g.TenthsDB))
}

func nearestGain(gains []int, want int) int {
	if len(gains) == 0 {
		return want
	}
	best := gains[0]
	for _, g := range gains[1:] {
		if abs(g-want) < abs(best-want) {
			best = g
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func (r *RTLSDRDevice) Stop() error {
	if r.device == nil {
		return nil
	}
	err := r.device.CancelAsync()

	r.wg.Wait()
	if err != nil {
		return err
	}

	return r.device.Close()
}
