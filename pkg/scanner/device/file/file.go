package file

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/norasector/p25scanner/pkg/scanner/device"
	"github.com/norasector/turbine-common/types"
)

// FileDevice replays a cs8 capture at its recorded rate. Retunes are recorded but do not
// change the data.
type FileDevice struct {
	readFile    io.ReadSeekCloser
	readSize    int
	timeBetween time.Duration
	loop        bool

	mu         sync.Mutex
	sampleRate int
	centerFreq int
	retunes    []int
	gain       device.Gain
}

// NewFileDevice reads readSize bytes per block. A zero timeBetween paces blocks at the
// sample rate passed to Start.
func NewFileDevice(file string, readSize int, timeBetween time.Duration, loop bool) (*FileDevice, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	return newFileDevice(f, readSize, timeBetween, loop), nil
}

func newFileDevice(r io.ReadSeekCloser, readSize int, timeBetween time.Duration, loop bool) *FileDevice {
	return &FileDevice{
		readFile:    r,
		readSize:    readSize &^ 1,
		timeBetween: timeBetween,
		loop:        loop,
	}
}

func (f *FileDevice) Start(ctx context.Context, centerFreq int, sampleRate int, out chan<- *types.SegmentComplex64) error {
	f.mu.Lock()
	f.centerFreq = centerFreq
	f.sampleRate = sampleRate
	f.mu.Unlock()

	interval := f.timeBetween
	if interval == 0 {
		interval = time.Duration(float64(f.readSize/2) / float64(sampleRate) * float64(time.Second))
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	buf := make([]byte, f.readSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			n, err := io.ReadFull(f.readFile, buf)
			if err != nil && err != io.ErrUnexpectedEOF {
				if err != io.EOF || !f.loop {
					return err
				}
				if _, err := f.readFile.Seek(0, io.SeekStart); err != nil {
					return err
				}
				continue
			}

			f.mu.Lock()
			seg := types.SegmentCS8Raw{
				SampleRate: f.sampleRate,
				Data:       make([]byte, n),
				Frequency:  f.centerFreq,
			}
			f.mu.Unlock()
			copy(seg.Data, buf[:n])

			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- seg.ToComplex64():
			}
		}
	}
}

func (f *FileDevice) SetFrequency(hz int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.centerFreq = hz
	f.retunes = append(f.retunes, hz)
	return nil
}

// Retunes lists every frequency requested since Start.
func (f *FileDevice) Retunes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.retunes...)
}

func (f *FileDevice) SetSampleRate(hz int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sampleRate = hz
	return nil
}

func (f *FileDevice) SetGain(g device.Gain) error {
	f.gain = g
	return nil
}

func (f *FileDevice) Stop() error {
	return f.readFile.Close()
}

func (f *FileDevice) MaxSampleRate() int {
	return 20e6
}
