package triage

import (
	"context"
	"time"
)

type EventType string

const (
	EventPatientAdmitted   EventType = "patient.admitted"
	EventAdmissionRejected EventType = "admission.rejected"
	EventPatientDischarged EventType = "patient.discharged"
)

// Event describes a change to the waiting line or the resource pool.
// Waiting and Resources are the values right after the change.
type Event struct {
	Type          EventType        `json:"type"`
	PatientID     int              `json:"patient_id,omitempty"`
	PriorityScore int              `json:"priority_score,omitempty"`
	Persisted     bool             `json:"persisted,omitempty"`
	Waiting       int              `json:"waiting"`
	Resources     ResourceSnapshot `json:"resources"`
	At            time.Time        `json:"at"`
}

// EventPublisher receives service events. Publish is called outside the
// service lock, so events from concurrent stations may arrive out of order;
// consumers needing exact state should read it back from the service.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event)
}

// Publishers fans one event out to several publishers in order.
type Publishers []EventPublisher

func (ps Publishers) Publish(ctx context.Context, ev Event) {
	for _, p := range ps {
		p.Publish(ctx, ev)
	}
}
