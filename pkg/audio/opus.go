package audio

import (
	"context"
	"time"

	"github.com/hraban/opus"
	"github.com/norasector/turbine-common/types"
)

const opusFrameDuration = 20 * time.Millisecond

// opus accepts 2.5, 5, 10, 20, 40 and 60 ms frames
var opusFlushDurations = []time.Duration{
	2500 * time.Microsecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	20 * time.Millisecond,
}

// opusEncoder packs one talkgroup's PCM into opus frames. It is owned by a single
// goroutine.
type opusEncoder struct {
	sampleRate    int
	talkGroup     types.TalkGroup
	encoder       *opus.Encoder
	inBuf         []float32
	encBuf        [4096]byte
	segmentNumber int
	lastWrite     time.Time
}

func newOpusEncoder(sampleRate int, tg types.TalkGroup) (*opusEncoder, error) {
	enc, err := opus.NewEncoder(sampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	if err := enc.SetPacketLossPerc(20); err != nil {
		return nil, err
	}
	if err := enc.SetBitrateToAuto(); err != nil {
		return nil, err
	}
	return &opusEncoder{
		sampleRate: sampleRate,
		talkGroup:  tg,
		encoder:    enc,
	}, nil
}

func (o *opusEncoder) samplesPer(d time.Duration) int {
	return int(int64(o.sampleRate) * int64(d) / int64(time.Second))
}

// push buffers samples and returns every complete frame.
func (o *opusEncoder) push(samples []float32, now time.Time) ([]*types.TaggedAudioFrameOpus, error) {
	o.inBuf = append(o.inBuf, samples...)
	o.lastWrite = now

	var ret []*types.TaggedAudioFrameOpus
	frame := o.samplesPer(opusFrameDuration)
	for len(o.inBuf) >= frame {
		f, err := o.encode(frame, now)
		if err != nil {
			return ret, err
		}
		ret = append(ret, f)
	}
	return ret, nil
}

// flush encodes what is left using the largest frame size that fits; a tail shorter
// than the smallest frame is dropped.
func (o *opusEncoder) flush(now time.Time) (*types.TaggedAudioFrameOpus, error) {
	for j := len(opusFlushDurations) - 1; j >= 0; j-- {
		n := o.samplesPer(opusFlushDurations[j])
		if n <= len(o.inBuf) {
			return o.encode(n, now)
		}
	}
	o.inBuf = o.inBuf[:0]
	return nil, nil
}

func (o *opusEncoder) encode(n int, now time.Time) (*types.TaggedAudioFrameOpus, error) {
	bytesEncoded, err := o.encoder.EncodeFloat32(o.inBuf[:n], o.encBuf[:])
	if err != nil {
		return nil, err
	}
	o.inBuf = append(o.inBuf[:0], o.inBuf[n:]...)

	data := make([]byte, bytesEncoded)
	copy(data, o.encBuf[:bytesEncoded])

	tg := o.talkGroup
	f := &types.TaggedAudioFrameOpus{
		Audio: &types.SegmentBinaryBytes{
			SegmentNumber: o.segmentNumber,
			Data:          data,
		},
		TalkGroup:                &tg,
		SampleLengthMicroseconds: n * 1e6 / o.sampleRate,
		Timestamp:                now.UTC(),
	}
	o.segmentNumber++
	return f, nil
}

// idle reports whether the encoder has pending samples that have waited long enough
// to be flushed.
func (o *opusEncoder) idle(now time.Time) bool {
	return len(o.inBuf) > 0 && now.Sub(o.lastWrite) > opusFrameDuration*3/2
}

func (o *opusEncoder) run(ctx context.Context, in <-chan []float32, out chan<- *types.TaggedAudioFrameOpus) error {
	ticker := time.NewTicker(opusFrameDuration)
	defer ticker.Stop()

	send := func(f *types.TaggedAudioFrameOpus) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- f:
			return nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if !o.idle(now) {
				continue
			}
			f, err := o.flush(now)
			if err != nil {
				return err
			}
			if f != nil {
				if err := send(f); err != nil {
					return nil
				}
			}
		case samples := <-in:
			frames, err := o.push(samples, time.Now())
			if err != nil {
				return err
			}
			for _, f := range frames {
				if err := send(f); err != nil {
					return nil
				}
			}
		}
	}
}
