package main

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ehr/ertriage/internal/domain/triage"
	"github.com/ehr/ertriage/internal/platform/telemetry"
	"github.com/ehr/ertriage/internal/platform/websocket"
)

// Station feed topics.
const (
	topicQueue     = "queue"
	topicResources = "resources"
)

// ---------------------------------------------------------------------------
// queueFeed adapts the websocket hub to triage.EventPublisher.
// ---------------------------------------------------------------------------

type queueFeed struct {
	hub    *websocket.Hub
	logger zerolog.Logger
}

func (f *queueFeed) Publish(ctx context.Context, ev triage.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		f.logger.Error().Err(err).Str("type", string(ev.Type)).Msg("failed to encode station event")
		return
	}

	topics := []string{topicQueue, topicResources}
	if ev.Type == triage.EventAdmissionRejected {
		// Nothing joined the line, only the shortage is news.
		topics = topics[1:]
	}
	for _, topic := range topics {
		err := f.hub.Publish(ctx, websocket.Event{
			Type:      string(ev.Type),
			Topic:     topic,
			Timestamp: ev.At,
			Data:      data,
		})
		if err != nil {
			f.logger.Error().Err(err).Str("topic", topic).Msg("failed to publish station event")
		}
	}
}

// ---------------------------------------------------------------------------
// metricsRecorder adapts the telemetry provider to triage.EventPublisher.
// ---------------------------------------------------------------------------

type metricsRecorder struct {
	metrics *telemetry.Provider
}

func newMetricsRecorder(metrics *telemetry.Provider, svc *triage.Service) *metricsRecorder {
	metrics.DescribeCounter("admissions_total", "Admission attempts by outcome.")
	metrics.DescribeCounter("discharges_total", "Patients discharged, by whether the record was saved.")

	metrics.RegisterGauge("queue_waiting", "Patients in the waiting line.", func() float64 {
		return float64(svc.Stats().Waiting)
	})
	for _, kind := range []triage.ResourceKind{triage.Doctors, triage.Rooms, triage.Equipment} {
		kind := kind
		metrics.RegisterGauge("resources_available", "Available units by kind.", func() float64 {
			available, _, _ := svc.Availability(kind)
			return float64(available)
		}, telemetry.L("kind", kind.String()))
	}
	return &metricsRecorder{metrics: metrics}
}

func (m *metricsRecorder) Publish(_ context.Context, ev triage.Event) {
	switch ev.Type {
	case triage.EventPatientAdmitted:
		m.metrics.Inc("admissions_total", telemetry.L("outcome", "admitted"))
	case triage.EventAdmissionRejected:
		m.metrics.Inc("admissions_total", telemetry.L("outcome", "rejected"))
	case triage.EventPatientDischarged:
		m.metrics.Inc("discharges_total", telemetry.L("persisted", strconv.FormatBool(ev.Persisted)))
	}
}
