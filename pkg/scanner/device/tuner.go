package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/norasector/p25scanner/pkg/p25"
	"github.com/norasector/p25scanner/pkg/util"
	"github.com/norasector/turbine-common/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSettle    = 10 * time.Millisecond
	DefaultQueueSize = 32
)

type TunerOption func(t *Tuner)

func WithSettle(d time.Duration) TunerOption {
	return func(t *Tuner) {
		t.settle = d
	}
}

func WithQueueSize(n int) TunerOption {
	return func(t *Tuner) {
		t.queue = util.NewDroppingQueue[*SampleBlock](n)
	}
}

// WithTuneOffset keeps the hardware centre offset Hz away from the requested channel.
func WithTuneOffset(offset int) TunerOption {
	return func(t *Tuner) {
		t.offset = offset
	}
}

func WithLogger(logger zerolog.Logger) TunerOption {
	return func(t *Tuner) {
		t.logger = logger
	}
}

// Tuner turns a Driver into a stream of SampleBlocks with asynchronous retuning.
// Retune requests are applied between two blocks, so no block straddles frequencies.
type Tuner struct {
	driver Driver
	queue  *util.DroppingQueue[*SampleBlock]
	settle time.Duration
	offset int
	logger zerolog.Logger
	now    func() time.Time

	mu         sync.Mutex
	raw        chan *types.SegmentComplex64
	current    int
	pending    int
	sampleRate int
	settleLeft int
	retuned    bool

	retunes atomic.Uint64
}

func NewTuner(driver Driver, opts ...TunerOption) *Tuner {
	t := &Tuner{
		driver: driver,
		queue:  util.NewDroppingQueue[*SampleBlock](DefaultQueueSize),
		settle: DefaultSettle,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start runs the driver until ctx is done. A driver failure is returned wrapped in
// ErrHardwareFault; io.EOF from a finite source is returned as is.
func (t *Tuner) Start(ctx context.Context, freq, sampleRate int) error {
	if sampleRate > t.driver.MaxSampleRate() {
		return fmt.Errorf("sample rate %d > device max sample rate %d", sampleRate, t.driver.MaxSampleRate())
	}
	t.mu.Lock()
	t.current = freq
	t.pending = 0
	t.sampleRate = sampleRate
	t.mu.Unlock()

	raw := make(chan *types.SegmentComplex64, 4)
	t.mu.Lock()
	t.raw = raw
	t.mu.Unlock()
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		err := t.driver.Start(ctx, freq-t.offset, sampleRate, raw)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
			return nil
		case errors.Is(err, io.EOF):
			return io.EOF
		}
		return fmt.Errorf("%w: %w", ErrHardwareFault, err)
	})

	eg.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case seg := <-raw:
				if err := t.handleSegment(seg); err != nil {
					return err
				}
			}
		}
	})

	return eg.Wait()
}

func (t *Tuner) handleSegment(seg *types.SegmentComplex64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending != 0 {
		return t.retune(seg)
	}

	block := t.block(seg, t.current)
	if t.settleLeft > 0 {
		block.Unreliable = true
		t.settleLeft -= len(seg.Data)
	} else if t.retuned {
		block.Retuned = true
		t.retuned = false
	}

	t.queue.Push(block)
	return nil
}

// retune applies the pending frequency. seg and any segments already waiting behind it
// were captured before the retune and go out unreliable at the old frequency; the settle
// window counts only samples captured afterwards.
func (t *Tuner) retune(seg *types.SegmentComplex64) error {
	freq, old := t.pending, t.current
	t.pending = 0
	if err := t.driver.SetFrequency(freq - t.offset); err != nil {
		return fmt.Errorf("%w: retune to %s: %w", ErrHardwareFault, p25.MHzToString(freq), err)
	}

	stale := 0
	for seg != nil {
		block := t.block(seg, old)
		block.Unreliable = true
		t.queue.Push(block)
		stale++

		select {
		case seg = <-t.raw:
		default:
			seg = nil
		}
	}

	t.current = freq
	t.settleLeft = int(t.settle.Seconds() * float64(t.sampleRate))
	if b, ok := t.driver.(Buffered); ok {
		t.settleLeft += b.BufferedSamples()
	}
	t.retuned = true
	t.retunes.Add(1)
	t.logger.Debug().
		Str("frequency", p25.MHzToString(freq)).
		Int("stale_segments", stale).
		Int("settle_samples", t.settleLeft).
		Msg("retuned")
	return nil
}

func (t *Tuner) block(seg *types.SegmentComplex64, freq int) *SampleBlock {
	return &SampleBlock{
		Samples:    seg,
		Frequency:  freq,
		Offset:     t.offset,
		SampleRate: t.sampleRate,
		Timestamp:  t.now(),
	}
}

// SetFrequency requests a retune and returns immediately. The latest request wins.
// Asking for the active frequency with nothing pending does nothing.
func (t *Tuner) SetFrequency(hz int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if hz == t.current {
		t.pending = 0
		return
	}
	t.pending = hz
}

// Frequency is the frequency blocks are currently captured at.
func (t *Tuner) Frequency() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Pending reports a requested frequency not yet applied.
func (t *Tuner) Pending() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending, t.pending != 0
}

func (t *Tuner) SetSampleRate(hz int) error {
	if hz > t.driver.MaxSampleRate() {
		return fmt.Errorf("sample rate %d > device max sample rate %d", hz, t.driver.MaxSampleRate())
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.driver.SetSampleRate(hz); err != nil {
		return fmt.Errorf("%w: set sample rate: %w", ErrHardwareFault, err)
	}
	t.sampleRate = hz
	return nil
}

func (t *Tuner) SetGain(g Gain) error {
	if err := t.driver.SetGain(g); err != nil {
		return fmt.Errorf("%w: set gain %s: %w", ErrHardwareFault, g, err)
	}
	return nil
}

// Blocks delivers SampleBlocks in capture order.
func (t *Tuner) Blocks() <-chan *SampleBlock {
	return t.queue.C()
}

// Overruns counts blocks dropped because the consumer fell behind.
func (t *Tuner) Overruns() uint64 {
	return t.queue.Overruns()
}

func (t *Tuner) Retunes() uint64 {
	return t.retunes.Load()
}

func (t *Tuner) Stop() error {
	return t.driver.Stop()
}
