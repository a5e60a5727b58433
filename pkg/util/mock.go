package util

import (
	"sync"

	"github.com/influxdata/influxdb-client-go/api/write"
)

// MockWriteAPI stands in for an InfluxDB writer when none is configured. It keeps the
// points it was given so they can be inspected.
type MockWriteAPI struct {
	// Discard drops points instead of keeping them.
	Discard bool

	mu     sync.Mutex
	points []*write.Point
}

func (m *MockWriteAPI) WriteRecord(line string) {}

func (m *MockWriteAPI) WritePoint(point *write.Point) {
	if m.Discard {
		return
	}
	m.mu.Lock()
	m.points = append(m.points, point)
	m.mu.Unlock()
}

func (m *MockWriteAPI) Points() []*write.Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*write.Point(nil), m.points...)
}

func (m *MockWriteAPI) Flush() {}

func (m *MockWriteAPI) Close() {}

func (m *MockWriteAPI) Errors() <-chan error { return nil }
