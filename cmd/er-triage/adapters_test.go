package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/ertriage/internal/domain/triage"
	"github.com/ehr/ertriage/internal/platform/telemetry"
	"github.com/ehr/ertriage/internal/platform/websocket"
)

func drain(ch chan []byte) []websocket.Event {
	var out []websocket.Event
	for {
		select {
		case msg := <-ch:
			var ev websocket.Event
			if err := json.Unmarshal(msg, &ev); err == nil {
				out = append(out, ev)
			}
		default:
			return out
		}
	}
}

func TestQueueFeed_Topics(t *testing.T) {
	hub := websocket.NewHub(zerolog.Nop())
	queueDesk := websocket.NewClient([]string{topicQueue})
	resourceDesk := websocket.NewClient([]string{topicResources})
	hub.Register(queueDesk)
	hub.Register(resourceDesk)

	feed := &queueFeed{hub: hub, logger: zerolog.Nop()}
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	feed.Publish(context.Background(), triage.Event{Type: triage.EventPatientAdmitted, PatientID: 1, PriorityScore: 70, Waiting: 1, At: at})
	feed.Publish(context.Background(), triage.Event{Type: triage.EventAdmissionRejected, At: at})

	queued := drain(queueDesk.Send)
	if len(queued) != 1 || queued[0].Type != string(triage.EventPatientAdmitted) {
		t.Fatalf("queue topic should only see the admission, got %+v", queued)
	}
	if !queued[0].Timestamp.Equal(at) {
		t.Errorf("expected timestamp %v, got %v", at, queued[0].Timestamp)
	}
	var payload triage.Event
	if err := json.Unmarshal(queued[0].Data, &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.PatientID != 1 || payload.PriorityScore != 70 || payload.Waiting != 1 {
		t.Errorf("unexpected payload %+v", payload)
	}

	if got := drain(resourceDesk.Send); len(got) != 2 {
		t.Fatalf("resources topic should see both events, got %d", len(got))
	}
}

func TestMetricsRecorder_CountsOutcomes(t *testing.T) {
	svc := triage.NewService(triage.Capacities{Doctors: 1, Rooms: 1, Equipment: 1}, nil, zerolog.Nop())
	metrics := telemetry.NewProvider("triage")
	rec := newMetricsRecorder(metrics, svc)

	ctx := context.Background()
	rec.Publish(ctx, triage.Event{Type: triage.EventPatientAdmitted})
	rec.Publish(ctx, triage.Event{Type: triage.EventAdmissionRejected})
	rec.Publish(ctx, triage.Event{Type: triage.EventAdmissionRejected})
	rec.Publish(ctx, triage.Event{Type: triage.EventPatientDischarged, Persisted: true})
	rec.Publish(ctx, triage.Event{Type: triage.EventPatientDischarged})

	cases := []struct {
		name  string
		label telemetry.Label
		want  int64
	}{
		{"admissions_total", telemetry.L("outcome", "admitted"), 1},
		{"admissions_total", telemetry.L("outcome", "rejected"), 2},
		{"discharges_total", telemetry.L("persisted", "true"), 1},
		{"discharges_total", telemetry.L("persisted", "false"), 1},
	}
	for _, tc := range cases {
		if got := metrics.Counter(tc.name, tc.label); got != tc.want {
			t.Errorf("%s{%s=%q}: expected %d, got %d", tc.name, tc.label.Name, tc.label.Value, tc.want, got)
		}
	}
}
