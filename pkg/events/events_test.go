package events

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/norasector/p25scanner/pkg/trunking"
	"github.com/norasector/p25scanner/pkg/util"
	"github.com/rs/zerolog"
)

func TestBusNeverBlocks(t *testing.T) {
	b := NewBus()
	fast := b.Subscribe("fast", 16)
	slow := b.Subscribe("slow", 2)

	for i := 0; i < 10; i++ {
		b.Publish(Event{Kind: DecodeError, Count: uint64(i)})
	}
	if len(fast) != 10 || len(slow) != 2 {
		t.Fatalf("queued %d/%d, want 10/2", len(fast), len(slow))
	}
	want := map[string]uint64{"fast": 0, "slow": 8}
	if got := b.Dropped(); !reflect.DeepEqual(got, want) {
		t.Errorf("Dropped() = %v, want %v", got, want)
	}
	if ev := <-slow; ev.Count != 0 {
		t.Errorf("slow subscriber got %d first, want the oldest", ev.Count)
	}

	b.Close()
	b.Publish(Event{Kind: Retune})
	for range fast {
	}
	if _, ok := <-b.Subscribe("late", 1); ok {
		t.Error("subscription after Close() is open")
	}
}

type recordingSink struct {
	got []Kind
	err error
}

func (r *recordingSink) Handle(ev Event) error {
	r.got = append(r.got, ev.Kind)
	return r.err
}

func TestRun(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe("rec", 8)
	b.Publish(Event{Kind: GrantReceived})
	b.Publish(Event{Kind: GrantReleased})
	b.Close()

	sink := &recordingSink{err: errors.New("boom")}
	var errs int
	if err := Run(context.Background(), ch, sink, func(error) { errs++ }); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if !reflect.DeepEqual(sink.got, []Kind{GrantReceived, GrantReleased}) || errs != 2 {
		t.Errorf("Run() handled %v with %d errors", sink.got, errs)
	}
}

func TestFromUpdate(t *testing.T) {
	tests := []struct {
		in   trunking.UpdateKind
		want Kind
	}{
		{trunking.GrantReceived, GrantReceived},
		{trunking.GrantReleased, GrantReleased},
		{trunking.GrantExpired, GrantExpired},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			if got := FromUpdate(tt.in); got != tt.want {
				t.Errorf("FromUpdate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))
	g := trunking.Grant{Talkgroup: 100, Source: 4242, Frequency: 852487500}
	sink.Handle(NewGrantEvent(trunking.GrantReceived, g, time.Unix(0, 0)))

	out := buf.String()
	for _, want := range []string{`"talkgroup":100`, `"frequency":"852.4875 MHz"`, `"message":"grant_received"`, `"level":"info"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line %s missing %s", out, want)
		}
	}
}

func TestInfluxSink(t *testing.T) {
	w := &util.MockWriteAPI{}
	sink := NewInfluxSink(w)
	sink.Handle(NewErrorEvent(AudioOverrun, nil, 3, time.Now()))
	points := w.Points()
	if len(points) != 1 || points[0].Name() != "scanner.events" {
		t.Errorf("points = %v", points)
	}
}

type fakeToken struct {
	mqtt.Token
}

func (fakeToken) Wait() bool                     { return true }
func (fakeToken) WaitTimeout(time.Duration) bool { return true }
func (fakeToken) Error() error                   { return nil }

type fakePublisher struct {
	topics   []string
	payloads [][]byte
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload.([]byte))
	return fakeToken{}
}

func TestMQTTSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewMQTTSink(pub, MQTTConfig{Topic: "p25"})
	g := trunking.Grant{Talkgroup: 100, Frequency: 852487500}
	if err := sink.Handle(NewGrantEvent(trunking.GrantExpired, g, time.Unix(0, 0))); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(pub.topics, []string{"p25/grant_expired"}) {
		t.Fatalf("topics = %v", pub.topics)
	}
	var msg struct {
		Kind  string
		Grant trunking.Grant
	}
	if err := json.Unmarshal(pub.payloads[0], &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Kind != "grant_expired" || msg.Grant.Talkgroup != 100 {
		t.Errorf("payload = %s", pub.payloads[0])
	}
}
