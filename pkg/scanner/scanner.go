package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/p25scanner/pkg/calllog"
	"github.com/norasector/p25scanner/pkg/dsp/viz"
	"github.com/norasector/p25scanner/pkg/events"
	"github.com/norasector/p25scanner/pkg/p25"
	"github.com/norasector/p25scanner/pkg/p25/frame/phase1"
	"github.com/norasector/p25scanner/pkg/scanner/device"
	"github.com/norasector/p25scanner/pkg/trunking"
	"github.com/norasector/p25scanner/pkg/util"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	tickInterval     = 100 * time.Millisecond
	eventBufferSize  = 64
	defaultStatsTime = 30 * time.Second
)

// Options are the pipeline settings, usually converted from the configuration file.
type Options struct {
	SampleRate      int
	TuneOffset      int
	SquelchDBFS     float64
	MaxSyncErrors   int
	NAC             *uint16
	Timing          Timing
	GrantTimeout    time.Duration
	Settle          time.Duration
	HardwareRetries int
	RetryDelay      time.Duration
	StatsPeriod     time.Duration
}

type ScannerOption func(s *Scanner) error

func WithInfluxDB(writeAPI api.WriteAPI) ScannerOption {
	return func(s *Scanner) error {
		s.writeAPI = writeAPI
		return nil
	}
}

func WithImageServer(vizServer *viz.Server) ScannerOption {
	return func(s *Scanner) error {
		s.vizServer = vizServer
		return nil
	}
}

func WithLogger(logger zerolog.Logger) ScannerOption {
	return func(s *Scanner) error {
		s.logger = logger
		return nil
	}
}

func WithBus(bus *events.Bus) ScannerOption {
	return func(s *Scanner) error {
		s.bus = bus
		return nil
	}
}

// WithVoiceSink sets where voice for the followed call goes.
func WithVoiceSink(sink VoiceSink) ScannerOption {
	return func(s *Scanner) error {
		s.voice = sink
		return nil
	}
}

// WithEventSink runs sink on its own subscription to the event bus.
func WithEventSink(name string, sink events.Sink) ScannerOption {
	return func(s *Scanner) error {
		if _, ok := s.sinks[name]; ok {
			return fmt.Errorf("duplicate event sink %q", name)
		}
		s.sinks[name] = sink
		return nil
	}
}

// WithCallLog records followed calls and serves them on the status endpoint.
func WithCallLog(w *calllog.Writer) ScannerOption {
	return func(s *Scanner) error {
		s.calls = w
		s.sinks["calllog"] = calllog.NewTracker(w)
		return nil
	}
}

// Scanner owns the receive pipeline: tuner, demodulator, frame decoding, trunking and
// the state machine that drives retuning.
type Scanner struct {
	opts      Options
	tuner     *device.Tuner
	demod     *Demodulator
	ctrl      *trunking.Controller
	sm        *StateMachine
	dec       *decoder
	frameDec  *phase1.Decoder
	bus       *events.Bus
	voice     VoiceSink
	sinks     map[string]events.Sink
	calls     *calllog.Writer
	status    *stateTracker
	writeAPI  api.WriteAPI
	vizServer *viz.Server
	logger    zerolog.Logger

	blocks         atomic.Uint64
	unreliable     atomic.Uint64
	lossOfSignal   atomic.Uint64
	symbols        atomic.Uint64
	hardwareFaults atomic.Uint64
	powerDBFS      atomic.Uint64 // float64 bits, written by the decode goroutine
	started        time.Time
}

func NewScanner(driver device.Driver, plan *trunking.ChannelPlan, options Options, opts ...ScannerOption) (*Scanner, error) {
	if options.SampleRate == 0 {
		return nil, errors.New("must specify sample rate")
	}
	if len(plan.ControlFrequencies) == 0 {
		return nil, errors.New("must specify at least one control frequency")
	}
	if options.StatsPeriod == 0 {
		options.StatsPeriod = defaultStatsTime
	}
	if options.MaxSyncErrors == 0 {
		options.MaxSyncErrors = phase1.DefaultMaxSyncErrors
	}

	s := &Scanner{
		opts:     options,
		sinks:    make(map[string]events.Sink),
		status:   &stateTracker{},
		writeAPI: &util.MockWriteAPI{Discard: true}, // overwritten with option
		logger:   log.Logger,
	}
	s.sinks["status"] = s.status
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.bus == nil {
		s.bus = events.NewBus()
	}
	if _, ok := s.sinks["log"]; !ok {
		s.sinks["log"] = events.NewLogSink(s.logger.With().Str("component", "events").Logger())
	}

	tunerOpts := []device.TunerOption{
		device.WithTuneOffset(options.TuneOffset),
		device.WithLogger(s.logger.With().Str("component", "tuner").Logger()),
	}
	if options.Settle > 0 {
		tunerOpts = append(tunerOpts, device.WithSettle(options.Settle))
	}
	s.tuner = device.NewTuner(driver, tunerOpts...)

	var err error
	s.demod, err = NewDemodulator(options.SampleRate, options.TuneOffset, options.SquelchDBFS, s.vizServer,
		s.logger.With().Str("component", "demodulator").Logger())
	if err != nil {
		return nil, err
	}

	ctrlOpts := []trunking.ControllerOption{
		trunking.WithLogger(s.logger.With().Str("component", "trunking").Logger()),
	}
	if options.GrantTimeout > 0 {
		ctrlOpts = append(ctrlOpts, trunking.WithGrantTimeout(options.GrantTimeout))
	}
	s.ctrl = trunking.NewController(plan, ctrlOpts...)
	s.sm = NewStateMachine(s.ctrl, s.tuner, s.bus, options.Timing, s.logger.With().Str("component", "scanner").Logger())

	decOpts := []phase1.DecoderOption{
		phase1.WithLogger(s.logger.With().Str("component", "decoder").Logger()),
	}
	if options.NAC != nil {
		decOpts = append(decOpts, phase1.WithExpectedNAC(*options.NAC))
	}
	s.frameDec = phase1.NewDecoder(decOpts...)
	s.dec = newDecoder(options.MaxSyncErrors, s.frameDec, s.sm, s.voice, s.bus, s.logger.With().Str("component", "framer").Logger())

	if s.vizServer != nil {
		s.registerRoutes()
	}
	return s, nil
}

func (s *Scanner) Bus() *events.Bus {
	return s.bus
}

func (s *Scanner) State() State {
	return s.sm.State()
}

func (s *Scanner) Stop() error {
	if s.vizServer != nil {
		s.vizServer.Stop(context.TODO())
	}
	return s.tuner.Stop()
}

// Start runs the pipeline until ctx is done, a hardware fault outlives its retries,
// or a finite sample source ends.
func (s *Scanner) Start(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	s.started = time.Now()

	for name, sink := range s.sinks {
		ch := s.bus.Subscribe(name, eventBufferSize)
		name, sink := name, sink
		eg.Go(func() error {
			return events.Run(ctx, ch, sink, func(err error) {
				s.logger.Warn().Err(err).Str("sink", name).Msg("event sink failed")
			})
		})
	}

	if s.vizServer != nil {
		eg.Go(func() error {
			return s.vizServer.Run(ctx)
		})
	}

	if s.calls != nil {
		eg.Go(func() error {
			return s.calls.Run(ctx)
		})
	}

	s.sm.Start(time.Now())
	control := s.sm.State().Frequency

	eg.Go(func() error {
		return s.runDevice(ctx, control)
	})
	eg.Go(func() error {
		return s.processSamples(ctx)
	})
	eg.Go(func() error {
		return s.logStats(ctx)
	})
	eg.Go(func() error {
		<-ctx.Done()
		if s.vizServer != nil {
			s.vizServer.Stop(context.Background())
		}
		return nil
	})

	s.logger.Info().
		Str("control_freq", p25.MHzToString(control)).
		Str("sample_rate", p25.MHzToString(s.opts.SampleRate)).
		Str("tune_offset", p25.MHzToString(s.opts.TuneOffset)).
		Msg("starting")

	err := eg.Wait()
	s.bus.Close()
	if errors.Is(err, io.EOF) {
		s.logger.Info().Msg("sample source finished")
		return nil
	}
	return err
}

// runDevice keeps the tuner running, restarting it after hardware faults until the
// retry budget is spent.
func (s *Scanner) runDevice(ctx context.Context, freq int) error {
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			freq = s.sm.State().Frequency
		}
		err := s.tuner.Start(ctx, freq, s.opts.SampleRate)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		if !errors.Is(err, device.ErrHardwareFault) {
			return err
		}

		n := s.hardwareFaults.Add(1)
		s.bus.Publish(events.NewErrorEvent(events.HardwareFault, err, n, time.Now()))
		if attempt >= s.opts.HardwareRetries {
			return fmt.Errorf("giving up after %d attempts: %w", attempt+1, err)
		}
		s.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("retry_delay", s.opts.RetryDelay).
			Msg("hardware fault, restarting device")

		if err := s.tuner.Stop(); err != nil {
			s.logger.Debug().Err(err).Msg("stopping device")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.opts.RetryDelay):
		}
	}
}

// processSamples is the decode context. Every state machine input, ticks included,
// happens on this goroutine.
func (s *Scanner) processSamples(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.sm.Tick(now)
		case b := <-s.tuner.Blocks():
			if err := s.processBlock(b); err != nil {
				return err
			}
		}
	}
}

func (s *Scanner) processBlock(b *device.SampleBlock) error {
	s.blocks.Add(1)
	if b.Unreliable {
		s.unreliable.Add(1)
		return nil
	}
	if b.Retuned {
		s.demod.Reset()
		s.dec.Reset()
	}

	metrics := make(map[string]interface{})
	start := time.Now()
	sb, err := s.demod.Demodulate(b, metrics)
	if err != nil {
		return err
	}
	s.powerDBFS.Store(math.Float64bits(s.demod.PowerDBFS()))
	if sb.LossOfSignal {
		s.lossOfSignal.Add(1)
	}
	s.symbols.Add(uint64(len(sb.Symbols)))
	s.dec.HandleSymbols(sb, b.Timestamp)

	metrics["process_time_us"] = time.Since(start).Microseconds()
	metrics["symbols"] = len(sb.Symbols)
	metrics["samples"] = len(b.Samples.Data)
	s.writeAPI.WritePoint(influxdb2.NewPoint("channel.processed",
		map[string]string{
			"frequency":   p25.MHzToString(b.Frequency),
			"mode":        s.sm.State().Mode.String(),
			"sample_type": "complex64",
		},
		metrics, start))
	return nil
}

func (s *Scanner) registerRoutes() {
	s.vizServer.Handle("GET", "/status", s.handleStatus)
	s.vizServer.Handle("GET", "/calls", s.handleCalls)
}
