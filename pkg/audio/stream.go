package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/p25scanner/pkg/util"
	"github.com/norasector/turbine-common/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/proto"
)

const (
	streamReceiveBuffer = 8
	encoderInputBuffer  = 4
)

// TaggedOutput receives talkgroup tagged PCM alongside the playback device.
type TaggedOutput interface {
	// Start runs until ctx is done or the output fails.
	Start(ctx context.Context) error
	// Receive is fed without blocking; a full channel drops the block.
	Receive() chan<- *types.TaggedAudioSampleFloat32
}

type Destination struct {
	Host string
	Port int
}

type StreamOption func(s *OpusStream)

func WithStreamLogger(logger zerolog.Logger) StreamOption {
	return func(s *OpusStream) {
		s.logger = logger
	}
}

func WithStreamMetrics(writeAPI api.WriteAPI) StreamOption {
	return func(s *OpusStream) {
		s.metrics = writeAPI
	}
}

// OpusStream encodes each talkgroup separately and sends length prefixed
// TaggedAudioFrameOpus protobufs over UDP to every destination.
type OpusStream struct {
	dests      []Destination
	sampleRate int
	recvChan   chan *types.TaggedAudioSampleFloat32
	opusChan   chan *types.TaggedAudioFrameOpus
	metrics    api.WriteAPI
	logger     zerolog.Logger

	mu       sync.Mutex
	encoders map[int]chan []float32
}

func NewOpusStream(dests []Destination, sampleRate int, opts ...StreamOption) *OpusStream {
	s := &OpusStream{
		dests:      dests,
		sampleRate: sampleRate,
		recvChan:   make(chan *types.TaggedAudioSampleFloat32, streamReceiveBuffer),
		opusChan:   make(chan *types.TaggedAudioFrameOpus, streamReceiveBuffer),
		encoders:   make(map[int]chan []float32),
		metrics:    &util.MockWriteAPI{Discard: true},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *OpusStream) Receive() chan<- *types.TaggedAudioSampleFloat32 {
	return s.recvChan
}

func (s *OpusStream) resolve() ([]*net.UDPAddr, error) {
	addrs := make([]*net.UDPAddr, 0, len(s.dests))
	for _, dest := range s.dests {
		ips, err := net.LookupIP(dest.Host)
		if err != nil {
			return nil, err
		}
		if len(ips) == 0 {
			return nil, fmt.Errorf("no IPs returned for %s", dest.Host)
		}
		addr := &net.UDPAddr{IP: ips[0], Port: dest.Port}
		addrs = append(addrs, addr)
		s.logger.Info().IPAddr("dest_ip", addr.IP).Int("port", dest.Port).Msg("stream output starting")
	}
	return addrs, nil
}

// encoderFor returns the input of the talkgroup's encoder, starting one on first use.
func (s *OpusStream) encoderFor(ctx context.Context, eg *errgroup.Group, tg types.TalkGroup) (chan []float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in, ok := s.encoders[tg.ID]; ok {
		return in, nil
	}
	enc, err := newOpusEncoder(s.sampleRate, tg)
	if err != nil {
		return nil, err
	}
	in := make(chan []float32, encoderInputBuffer)
	s.encoders[tg.ID] = in
	eg.Go(func() error {
		return enc.run(ctx, in, s.opusChan)
	})
	return in, nil
}

// frameDatagram is a little endian uint16 length followed by the protobuf message.
func frameDatagram(f *types.TaggedAudioFrameOpus) ([]byte, error) {
	encoded, err := proto.Marshal(f.ToProtobuf())
	if err != nil {
		return nil, err
	}
	if len(encoded) > 0xffff {
		return nil, fmt.Errorf("opus frame of %d bytes too large", len(encoded))
	}
	var msgBuf bytes.Buffer
	if err := binary.Write(&msgBuf, binary.LittleEndian, uint16(len(encoded))); err != nil {
		return nil, err
	}
	msgBuf.Write(encoded)
	return msgBuf.Bytes(), nil
}

func (s *OpusStream) send(ctx context.Context, conn *net.UDPConn, addrs []*net.UDPAddr) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-s.opusChan:
			msg, err := frameDatagram(f)
			if err != nil {
				s.logger.Warn().Err(err).Msg("error encoding frame")
				continue
			}
			sent := 0
			for _, addr := range addrs {
				if _, err := conn.WriteToUDP(msg, addr); err != nil {
					s.logger.Error().Err(err).Str("dest", addr.String()).Msg("error writing")
					continue
				}
				sent++
			}
			s.metrics.WritePoint(influxdb2.NewPoint("audio.stream_frame",
				map[string]string{
					"tgid": strconv.Itoa(f.TalkGroup.ID),
				},
				map[string]interface{}{
					"bytes_written":  len(msg),
					"frame_length":   len(f.Audio.Data),
					"sample_time_us": f.SampleLengthMicroseconds,
					"sent":           sent,
					"dropped":        len(addrs) - sent,
				}, time.Now()))
		}
	}
}

func (s *OpusStream) Start(ctx context.Context) error {
	addrs, err := s.resolve()
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		return conn.Close()
	})
	eg.Go(func() error {
		return s.send(ctx, conn, addrs)
	})
	eg.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case ts := <-s.recvChan:
				if ts.TalkGroup == nil || ts.TalkGroup.ID == 0 {
					continue
				}
				in, err := s.encoderFor(ctx, eg, *ts.TalkGroup)
				if err != nil {
					return err
				}
				select {
				case in <- ts.Audio.Data:
				default:
					s.logger.Debug().Int("tgid", ts.TalkGroup.ID).Msg("encoder busy, dropping audio")
				}
			}
		}
	})
	return eg.Wait()
}
