package triage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Service runs admission and discharge for the emergency department. It
// owns the waiting line and the resource pool; "reserve then enqueue" and
// "dequeue then release" each happen under one lock so the counters never
// drift apart, even with several triage stations connected.
type Service struct {
	mu     sync.Mutex
	queue  *Queue
	pool   *ResourcePool
	sink   DischargeSink
	events EventPublisher
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(caps Capacities, sink DischargeSink, logger zerolog.Logger) *Service {
	return &Service{
		queue:  NewQueue(),
		pool:   NewResourcePool(caps),
		sink:   sink,
		logger: logger.With().Str("component", "triage").Logger(),
		now:    time.Now,
	}
}

// SetClock replaces the time source used for arrival times and scoring.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetPublisher installs the receiver of admission and discharge events.
func (s *Service) SetPublisher(p EventPublisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = p
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if ev.Type == "" {
		return
	}
	s.mu.Lock()
	p := s.events
	s.mu.Unlock()
	if p != nil {
		p.Publish(ctx, ev)
	}
}

// Sink returns the discharge sink the service writes to.
func (s *Service) Sink() DischargeSink {
	return s.sink
}

// Admit validates attrs, reserves one doctor, room and piece of equipment,
// and places the new patient in the waiting line. It fails with a
// *ValidationError or ErrInsufficientResources; in both cases nothing is
// reserved and no patient is created. The returned Patient is a copy.
func (s *Service) Admit(ctx context.Context, attrs Attributes) (*Patient, error) {
	if err := attrs.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, ev, err := s.admit(attrs)
	s.publish(ctx, ev)
	return p, err
}

func (s *Service) admit(attrs Attributes) (*Patient, Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.pool.TryReserveAll() {
		res := s.pool.Snapshot()
		s.logger.Warn().
			Int("doctors", res.Doctors.Available).
			Int("rooms", res.Rooms.Available).
			Int("equipment", res.Equipment.Available).
			Msg("admission rejected: insufficient resources")
		ev := Event{Type: EventAdmissionRejected, Waiting: s.queue.Len(), Resources: res, At: now}
		return nil, ev, ErrInsufficientResources
	}

	p := newPatient(s.queue.NextID(), attrs, now)
	s.queue.Enqueue(p, now)

	s.logger.Info().
		Int("patient_id", p.ID).
		Str("condition", p.Condition.String()).
		Int("score", p.PriorityScore).
		Int("waiting", s.queue.Len()).
		Msg("patient admitted")

	ev := Event{
		Type:          EventPatientAdmitted,
		PatientID:     p.ID,
		PriorityScore: p.PriorityScore,
		Waiting:       s.queue.Len(),
		Resources:     s.pool.Snapshot(),
		At:            now,
	}
	cp := *p
	return &cp, ev, nil
}

// Discharge releases the highest-priority patient. The resources go back
// to the pool before the record is written, so a failing sink never
// starves the pool. If the sink fails the record is still returned, along
// with an error wrapping ErrPersistFailed. Cancelling ctx does not abort
// the write. ErrQueueEmpty is returned when
// nobody is waiting, and nothing is released.
func (s *Service) Discharge(ctx context.Context) (*DischargeRecord, error) {
	s.mu.Lock()
	now := s.now()
	p, ok := s.queue.DequeueHighest(now)
	if !ok {
		s.mu.Unlock()
		return nil, ErrQueueEmpty
	}
	s.pool.Release()
	waiting := s.queue.Len()
	res := s.pool.Snapshot()
	s.mu.Unlock()

	rec := newDischargeRecord(p, now)
	ev := Event{
		Type:          EventPatientDischarged,
		PatientID:     rec.PatientID,
		PriorityScore: rec.PriorityScore,
		Waiting:       waiting,
		Resources:     res,
		At:            now,
	}
	log := s.logger.With().
		Int("patient_id", rec.PatientID).
		Str("record_id", rec.RecordID.String()).
		Int("score", rec.PriorityScore).
		Int("waiting", waiting).
		Logger()

	if s.sink == nil {
		log.Warn().Msg("patient discharged without a discharge sink")
		s.publish(ctx, ev)
		return rec, fmt.Errorf("%w: no sink configured", ErrPersistFailed)
	}
	// The patient has already left the line, so the record is written even
	// if the caller goes away.
	if err := s.sink.Persist(context.WithoutCancel(ctx), rec); err != nil {
		log.Error().Err(err).Msg("patient discharged but record not persisted")
		s.publish(ctx, ev)
		return rec, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	log.Info().Msg("patient discharged")
	ev.Persisted = true
	s.publish(ctx, ev)
	return rec, nil
}

// Peek returns the patient who would be discharged next.
func (s *Service) Peek() (Patient, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.PeekHighest(s.now())
}

// EstimateWait returns the rough wait estimate in minutes for the next
// patient, or ErrQueueEmpty.
func (s *Service) EstimateWait() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mins, ok := s.queue.EstimateWaitMinutes(s.now())
	if !ok {
		return 0, ErrQueueEmpty
	}
	return mins, nil
}

// Queue lists the waiting line with freshly computed scores.
func (s *Service) Queue() []QueueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Snapshot(s.now())
}

func (s *Service) Availability(kind ResourceKind) (available, capacity int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool.Availability(kind)
}

func (s *Service) Resources() ResourceSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool.Snapshot()
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{TotalAdmitted: s.queue.TotalAdmitted(), Waiting: s.queue.Len()}
}
