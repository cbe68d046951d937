package triage

import (
	"sort"
	"time"
)

// Queue is the single waiting line, ordered by descending priority score.
// Scores drift with wait time, so every read refreshes them and re-sorts
// before answering. Ties go to the patient enqueued first.
//
// Queue owns the patients it holds: DequeueHighest hands the patient over
// and drops every reference to it. It is not safe for concurrent use.
type Queue struct {
	patients []*Patient
	admitted int
	seq      uint64
}

func NewQueue() *Queue {
	return &Queue{}
}

// Len is the number of patients currently waiting.
func (q *Queue) Len() int { return len(q.patients) }

// TotalAdmitted counts every patient ever enqueued. It never decreases.
func (q *Queue) TotalAdmitted() int { return q.admitted }

// NextID is the id the next admitted patient will receive.
func (q *Queue) NextID() int { return q.admitted + 1 }

// Enqueue scores p as of now and inserts it behind every waiting patient
// whose score is greater than or equal to its own.
func (q *Queue) Enqueue(p *Patient, now time.Time) {
	q.refresh(now)

	q.seq++
	p.seq = q.seq
	p.PriorityScore = Score(p, now)

	i := sort.Search(len(q.patients), func(i int) bool {
		return q.patients[i].PriorityScore < p.PriorityScore
	})
	q.patients = append(q.patients, nil)
	copy(q.patients[i+1:], q.patients[i:])
	q.patients[i] = p

	q.admitted++
}

// DequeueHighest removes and returns the patient with the highest current
// score. It reports false when nobody is waiting.
func (q *Queue) DequeueHighest(now time.Time) (*Patient, bool) {
	if len(q.patients) == 0 {
		return nil, false
	}
	q.refresh(now)

	head := q.patients[0]
	q.patients[0] = nil
	q.patients = q.patients[1:]
	if len(q.patients) == 0 {
		q.patients = nil
	}
	return head, true
}

// PeekHighest returns a copy of the patient that DequeueHighest would
// return at the same instant.
func (q *Queue) PeekHighest(now time.Time) (Patient, bool) {
	if len(q.patients) == 0 {
		return Patient{}, false
	}
	q.refresh(now)
	return *q.patients[0], true
}

// EstimateWaitMinutes is half the head patient's score. It is a rough
// indicator reusing the urgency score, not a model of service time.
func (q *Queue) EstimateWaitMinutes(now time.Time) (int, bool) {
	head, ok := q.PeekHighest(now)
	if !ok {
		return 0, false
	}
	return head.PriorityScore / 2, true
}

// Snapshot refreshes every score and lists the line in service order.
func (q *Queue) Snapshot(now time.Time) []QueueEntry {
	q.refresh(now)
	entries := make([]QueueEntry, 0, len(q.patients))
	for i, p := range q.patients {
		entries = append(entries, QueueEntry{
			Position:      i + 1,
			PatientID:     p.ID,
			Name:          p.Name,
			PriorityScore: p.PriorityScore,
		})
	}
	return entries
}

func (q *Queue) refresh(now time.Time) {
	for _, p := range q.patients {
		p.PriorityScore = Score(p, now)
	}
	sort.Slice(q.patients, func(i, j int) bool {
		a, b := q.patients[i], q.patients[j]
		if a.PriorityScore != b.PriorityScore {
			return a.PriorityScore > b.PriorityScore
		}
		return a.seq < b.seq
	})
}
