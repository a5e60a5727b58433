package util

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestDroppingQueue(t *testing.T) {
	q := NewDroppingQueue[int](3)
	for i := 1; i <= 5; i++ {
		q.Push(i)
	}
	if q.Len() != 3 || q.Overruns() != 2 {
		t.Fatalf("Len() = %d Overruns() = %d, want 3 and 2", q.Len(), q.Overruns())
	}

	var got []int
	for {
		v, ok := q.TryPop()
		if !ok {
			break
		}
		got = append(got, v)
	}
	if want := []int{3, 4, 5}; !reflect.DeepEqual(got, want) {
		t.Errorf("popped %v, want %v", got, want)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := q.Pop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Pop() on empty queue = %v", err)
	}
}

func TestDroppingQueueNeverBlocks(t *testing.T) {
	q := NewDroppingQueue[[]byte](2)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			q.Push(make([]byte, 1))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Push blocked without a consumer")
	}
	if q.Overruns() != 9998 {
		t.Errorf("Overruns() = %d, want 9998", q.Overruns())
	}
}

func TestNormalizedFrequency(t *testing.T) {
	tests := []struct {
		shift int
		rate  float64
		want  float64
	}{
		{25000, 100000, 0.25},
		{-25000, 100000, -0.25},
		{75000, 100000, -0.25},
		{0, 100000, 0},
	}
	for _, tt := range tests {
		if got := NormalizedFrequency(tt.shift, tt.rate); got != tt.want {
			t.Errorf("NormalizedFrequency(%d, %v) = %v, want %v", tt.shift, tt.rate, got, tt.want)
		}
	}
}

func TestFrequencyRange(t *testing.T) {
	low, high := FrequencyRange(852487500, 851012500, 851500000)
	if low != 851012500 || high != 852487500 {
		t.Errorf("FrequencyRange() = %d, %d", low, high)
	}
	if g := GCD(24000, 25600); g != 800 {
		t.Errorf("GCD() = %d", g)
	}
}
