package file

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/norasector/turbine-common/types"
)

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }

func TestFileDeviceReplay(t *testing.T) {
	data := make([]byte, 40)
	for i := range data {
		data[i] = byte(i)
	}
	f := newFileDevice(nopCloser{bytes.NewReader(data)}, 16, time.Millisecond, false)

	out := make(chan *types.SegmentComplex64, 8)
	err := f.Start(context.Background(), 851012500, 2048000, out)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Start() = %v, want io.EOF", err)
	}
	close(out)

	var sizes []int
	for seg := range out {
		sizes = append(sizes, len(seg.Data))
	}
	if want := []int{8, 8, 4}; !reflect.DeepEqual(sizes, want) {
		t.Errorf("segment sizes = %v, want %v", sizes, want)
	}

	f.SetFrequency(852487500)
	f.SetFrequency(851012500)
	if want := []int{852487500, 851012500}; !reflect.DeepEqual(f.Retunes(), want) {
		t.Errorf("Retunes() = %v, want %v", f.Retunes(), want)
	}
}

func TestFileDeviceCancel(t *testing.T) {
	f := newFileDevice(nopCloser{bytes.NewReader(make([]byte, 64))}, 16, time.Millisecond, true)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out := make(chan *types.SegmentComplex64, 1024)
	if err := f.Start(ctx, 1, 1, out); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Start() = %v, want deadline exceeded", err)
	}
	if len(out) == 0 {
		t.Error("looping device produced nothing")
	}
}
