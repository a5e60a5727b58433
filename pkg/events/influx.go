package events

import (
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
)

// InfluxSink writes one point per event.
type InfluxSink struct {
	writeAPI api.WriteAPI
}

func NewInfluxSink(writeAPI api.WriteAPI) *InfluxSink {
	return &InfluxSink{writeAPI: writeAPI}
}

func (s *InfluxSink) Handle(ev Event) error {
	tags := map[string]string{"kind": ev.Kind.String()}
	fields := map[string]interface{}{"count": 1}
	if ev.Frequency != 0 {
		tags["frequency"] = strconv.Itoa(ev.Frequency)
	}
	if g := ev.Grant; g != nil {
		tags["talkgroup"] = strconv.Itoa(int(g.Talkgroup))
		fields["source"] = int(g.Source)
		fields["encrypted"] = g.Encrypted
	}
	if s := ev.Snapshot; s != nil {
		tags["mode"] = s.Mode
	}
	if ev.Count != 0 {
		fields["total"] = int64(ev.Count)
	}
	s.writeAPI.WritePoint(influxdb2.NewPoint("scanner.events", tags, fields, ev.Time))
	return nil
}
