package audio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// Device is the playback end of the sink. Write is called from the playback loop at the
// device period with exactly one period of samples.
type Device interface {
	Write(samples []float32) error
	Close() error
}

// PCMDevice writes signed 16 bit little endian mono PCM, suitable for piping into
// pacat or aplay.
type PCMDevice struct {
	w      *bufio.Writer
	closer io.Closer
	buf    []int16
}

func NewPCMDevice(w io.Writer) *PCMDevice {
	d := &PCMDevice{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok && w != os.Stdout {
		d.closer = c
	}
	return d
}

func (d *PCMDevice) Write(samples []float32) error {
	if cap(d.buf) < len(samples) {
		d.buf = make([]int16, len(samples))
	}
	buf := d.buf[:len(samples)]
	for i, s := range samples {
		buf[i] = toInt16(s)
	}
	if err := binary.Write(d.w, binary.LittleEndian, buf); err != nil {
		return err
	}
	return d.w.Flush()
}

func (d *PCMDevice) Close() error {
	err := d.w.Flush()
	if d.closer != nil {
		if cerr := d.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func toInt16(s float32) int16 {
	v := math.Round(float64(s) * math.MaxInt16)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// NullDevice discards audio; the sink still paces and counts.
type NullDevice struct{}

func (NullDevice) Write([]float32) error { return nil }
func (NullDevice) Close() error          { return nil }

// OpenDevice returns the device named in the configuration. An empty path for pcm
// means standard output.
func OpenDevice(kind, path string) (Device, error) {
	switch kind {
	case "none":
		return NullDevice{}, nil
	case "pcm":
		if path == "" || path == "-" {
			return NewPCMDevice(os.Stdout), nil
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		return NewPCMDevice(f), nil
	}
	return nil, fmt.Errorf("unknown audio device %q", kind)
}
