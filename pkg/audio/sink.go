package audio

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/p25scanner/pkg/dsp/filters/fir"
	"github.com/norasector/p25scanner/pkg/dsp/processor"
	"github.com/norasector/p25scanner/pkg/dsp/viz"
	"github.com/norasector/p25scanner/pkg/events"
	"github.com/norasector/p25scanner/pkg/p25"
	"github.com/norasector/p25scanner/pkg/p25/imbe"
	"github.com/norasector/p25scanner/pkg/util"
	"github.com/norasector/turbine-common/types"
	"github.com/racerxdl/segdsp/dsp"
	"github.com/rs/zerolog"
)

const (
	voiceRate      = 8000
	DefaultPeriod  = 20 * time.Millisecond
	DefaultBuffer  = 500 * time.Millisecond
	frameQueueSize = 16

	// a gap longer than two LDUs is the end of a transmission rather than an underrun
	streamGap = 360 * time.Millisecond
	// minimum spacing of published under/overrun events
	eventInterval = time.Second
)

type Publisher interface {
	Publish(ev events.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) {}

type SinkOption func(s *Sink)

func WithLogger(logger zerolog.Logger) SinkOption {
	return func(s *Sink) {
		s.logger = logger
	}
}

func WithPublisher(pub Publisher) SinkOption {
	return func(s *Sink) {
		s.pub = pub
	}
}

func WithInfluxDB(writeAPI api.WriteAPI) SinkOption {
	return func(s *Sink) {
		s.writeAPI = writeAPI
	}
}

func WithImageServer(vizServer *viz.Server) SinkOption {
	return func(s *Sink) {
		s.vizServer = vizServer
	}
}

// WithOutputRate sets the device rate; IMBE audio is resampled from 8 kHz.
func WithOutputRate(rate int) SinkOption {
	return func(s *Sink) {
		s.outputRate = rate
	}
}

func WithBuffer(d time.Duration) SinkOption {
	return func(s *Sink) {
		s.buffer = d
	}
}

func WithPeriod(d time.Duration) SinkOption {
	return func(s *Sink) {
		s.period = d
	}
}

// WithTaggedOutput adds an output fed with talkgroup tagged audio.
func WithTaggedOutput(out TaggedOutput) SinkOption {
	return func(s *Sink) {
		s.tagged = append(s.tagged, out)
	}
}

// Sink decodes voice for the call being followed and plays it out at the device rate.
// Submit is called from the decode context and never blocks.
type Sink struct {
	device     Device
	frames     *util.DroppingQueue[p25.VoiceFrame]
	imbe       *imbe.Decoder
	proc       *processor.Processor
	ring       *Ring
	tagged     []TaggedOutput
	pub        Publisher
	writeAPI   api.WriteAPI
	vizServer  *viz.Server
	logger     zerolog.Logger
	outputRate int
	buffer     time.Duration
	period     time.Duration

	playBuf   []float32
	playing   bool
	lastFrame time.Time
	segment   int

	lastUnderrunPub time.Time
	lastOverrunPub  time.Time

	encrypted     atomic.Uint64
	frameOverruns atomic.Uint64
	overruns      atomic.Uint64
	underruns     atomic.Uint64
	played        atomic.Uint64
	fecErrors     atomic.Uint64
}

func NewSink(device Device, opts ...SinkOption) (*Sink, error) {
	s := &Sink{
		device:     device,
		frames:     util.NewDroppingQueue[p25.VoiceFrame](frameQueueSize),
		imbe:       imbe.NewDecoder(),
		pub:        nopPublisher{},
		writeAPI:   &util.MockWriteAPI{Discard: true},
		logger:     zerolog.Nop(),
		outputRate: voiceRate,
		buffer:     DefaultBuffer,
		period:     DefaultPeriod,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.outputRate%voiceRate != 0 {
		return nil, errors.New("output rate must be a multiple of 8000")
	}

	s.proc = processor.NewProcessor("audio", "IMBE Output", s.vizServer)
	if s.outputRate != voiceRate {
		s.proc.AddBlock(processor.NewDSPWorkerFF(
			"resampler",
			"Resampler",
			voiceRate,
			s.outputRate,
			dsp.MakeFloatResampler(127, float32(s.outputRate)/float32(voiceRate)),
			processor.WithVizLength(s.outputRate/40),
			processor.WithPlotType(viz.PlotTypeLines),
		))
	}
	s.proc.AddBlock(processor.NewDSPWorkerFF(
		"voice_bandpass",
		"Voice Bandpass",
		s.outputRate,
		s.outputRate,
		dsp.MakeFloatFirFilter(fir.MakeBandPass(1.0, float64(s.outputRate), 300, 3400, 200, fir.Hamming)),
		processor.WithVizLength(512),
		processor.WithPlotType(viz.PlotTypeSpectrum),
	))
	if err := s.proc.Initialize(); err != nil {
		return nil, err
	}

	s.ring = NewRing(s.samples(s.buffer))
	s.playBuf = make([]float32, s.samples(s.period))
	return s, nil
}

func (s *Sink) samples(d time.Duration) int {
	return int(int64(s.outputRate) * int64(d) / int64(time.Second))
}

// Submit queues one LDU worth of voice. Encrypted frames are counted and refused. A
// full queue drops its oldest frame.
func (s *Sink) Submit(vf p25.VoiceFrame) bool {
	if vf.Encrypted {
		s.encrypted.Add(1)
		return false
	}
	if s.frames.Push(vf) {
		s.frameOverruns.Add(1)
	}
	return true
}

// Run drives intake and playback until ctx is done. Playback runs on a ticker at the
// device period.
func (s *Sink) Run(ctx context.Context) error {
	defer s.device.Close()

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case vf := <-s.frames.C():
			s.intake(vf, time.Now())
		case now := <-ticker.C:
			if err := s.playback(now); err != nil {
				return err
			}
		}
	}
}

// intake decodes the nine codewords of one frame into the ring.
func (s *Sink) intake(vf p25.VoiceFrame, now time.Time) {
	start := time.Now()
	pcm := make([]float32, 0, len(vf.Codewords)*imbe.FrameSamples)
	for i := range vf.Codewords {
		out, errs := s.imbe.Decode(vf.Codewords[i][:])
		s.fecErrors.Add(uint64(errs))
		pcm = append(pcm, out...)
	}

	filtered, err := s.proc.ProcessFloat(pcm, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("audio filter failed")
		return
	}
	s.lastFrame = now

	if dropped := s.ring.Write(filtered); dropped > 0 {
		n := s.overruns.Add(1)
		if now.Sub(s.lastOverrunPub) >= eventInterval {
			s.lastOverrunPub = now
			s.pub.Publish(events.Event{Kind: events.AudioOverrun, Time: now, Frequency: vf.Frequency, Count: n})
		}
	}

	s.fanOut(vf, filtered)

	s.writeAPI.WritePoint(influxdb2.NewPoint("audio.intake",
		map[string]string{
			"frequency": p25.MHzToString(vf.Frequency),
		},
		map[string]interface{}{
			"talkgroup":   int(vf.Talkgroup),
			"samples":     len(filtered),
			"buffered":    s.ring.Len(),
			"duration_us": time.Since(start).Microseconds(),
		}, now))
}

func (s *Sink) fanOut(vf p25.VoiceFrame, pcm []float32) {
	if len(s.tagged) == 0 {
		return
	}
	s.segment++
	for _, out := range s.tagged {
		data := make([]float32, len(pcm))
		copy(data, pcm)
		select {
		case out.Receive() <- &types.TaggedAudioSampleFloat32{
			TalkGroup: &types.TalkGroup{
				ID:        int(vf.Talkgroup),
				SourceID:  int(vf.Source),
				Frequency: vf.Frequency,
			},
			Audio: &types.SegmentFloat32{
				SegmentNumber: s.segment,
				Data:          data,
				Frequency:     vf.Frequency,
			},
		}:
		default:
			// never wait on a slow output
		}
	}
}

// playback writes one device period. Playback starts once a full period is buffered;
// running dry while voice is still arriving is an underrun and is filled with silence.
func (s *Sink) playback(now time.Time) error {
	buf := s.playBuf
	if !s.playing && s.ring.Len() >= len(buf) {
		s.playing = true
	}

	n := 0
	if s.playing {
		n = s.ring.Read(buf)
	}
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}

	if s.playing && n < len(buf) {
		s.playing = false
		if now.Sub(s.lastFrame) < streamGap {
			count := s.underruns.Add(1)
			if now.Sub(s.lastUnderrunPub) >= eventInterval {
				s.lastUnderrunPub = now
				s.pub.Publish(events.Event{Kind: events.AudioUnderrun, Time: now, Count: count})
			}
		}
	}
	s.played.Add(uint64(n))
	return s.device.Write(buf)
}

// Flush drops queued and buffered audio, e.g. when the followed call changes.
func (s *Sink) Flush() {
	for {
		if _, ok := s.frames.TryPop(); !ok {
			break
		}
	}
	s.ring.Reset()
}

type Counters struct {
	Encrypted     uint64
	FrameOverruns uint64
	Overruns      uint64
	Underruns     uint64
	Played        uint64
	FECErrors     uint64
	Buffered      int
}

func (s *Sink) Counters() Counters {
	return Counters{
		Encrypted:     s.encrypted.Load(),
		FrameOverruns: s.frameOverruns.Load(),
		Overruns:      s.overruns.Load(),
		Underruns:     s.underruns.Load(),
		Played:        s.played.Load(),
		FECErrors:     s.fecErrors.Load(),
		Buffered:      s.ring.Len(),
	}
}

// Outputs returns the tagged outputs so the caller can run them.
func (s *Sink) Outputs() []TaggedOutput {
	return s.tagged
}
