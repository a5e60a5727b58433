package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/norasector/turbine-common/types"
)

var ErrHardwareFault = errors.New("hardware fault")

// Gain is either automatic or a manual setting in tenths of a dB.
type Gain struct {
	Auto     bool
	TenthsDB int
}

func (g Gain) String() string {
	if g.Auto {
		return "auto"
	}
	return fmt.Sprintf("%.1f dB", float64(g.TenthsDB)/10)
}

// Driver is the boundary to the SDR hardware. Start blocks until ctx is done or the
// device fails; segments are delivered on out without blocking the device callback.
type Driver interface {
	Start(ctx context.Context, centerFreq int, sampleRate int, out chan<- *types.SegmentComplex64) error
	SetFrequency(hz int) error
	SetSampleRate(hz int) error
	SetGain(g Gain) error
	Stop() error
	MaxSampleRate() int
}

// Buffered is implemented by drivers that queue captured samples internally. Samples
// queued when a retune is applied were captured at the old frequency.
type Buffered interface {
	BufferedSamples() int
}

// SampleBlock is one run of I/Q samples captured at a single frequency.
type SampleBlock struct {
	Samples *types.SegmentComplex64
	// Frequency is the channel the block was captured for; the hardware centre is
	// Frequency - Offset.
	Frequency  int
	Offset     int
	SampleRate int
	Timestamp  time.Time
	// Unreliable blocks fall inside the settle window after a retune.
	Unreliable bool
	// Retuned marks the first reliable block after a retune.
	Retuned bool
}
