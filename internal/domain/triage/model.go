package triage

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Condition is the presenting medical condition recorded at triage.
type Condition int

const (
	Stable Condition = iota
	ModerateRisk
	HighRisk
	Critical
	Pregnant
	Elderly
)

var conditionNames = [...]string{
	Stable:       "stable",
	ModerateRisk: "moderate_risk",
	HighRisk:     "high_risk",
	Critical:     "critical",
	Pregnant:     "pregnant",
	Elderly:      "elderly",
}

// ParseCondition maps the numeric menu choice (0-5) to a Condition.
func ParseCondition(v int) (Condition, error) {
	c := Condition(v)
	if !c.Valid() {
		return 0, &ValidationError{Field: "condition", Reason: fmt.Sprintf("must be between 0 and 5, got %d", v)}
	}
	return c, nil
}

func (c Condition) Valid() bool {
	return c >= Stable && c <= Elderly
}

func (c Condition) String() string {
	if !c.Valid() {
		return fmt.Sprintf("condition(%d)", int(c))
	}
	return conditionNames[c]
}

// Weight is the base severity contributed to the priority score.
func (c Condition) Weight() int {
	switch c {
	case Critical:
		return 50
	case HighRisk:
		return 30
	case Pregnant:
		return 25
	case Elderly:
		return 20
	case ModerateRisk:
		return 15
	case Stable:
		return 5
	}
	return 0
}

// Vitals holds the three vital signs captured at arrival.
type Vitals struct {
	HeartRate        int `json:"heart_rate"`
	BloodPressure    int `json:"blood_pressure"`
	OxygenSaturation int `json:"oxygen_saturation"`
}

// Attributes is the input tuple accepted by Service.Admit.
type Attributes struct {
	Name      string    `json:"name"`
	Age       int       `json:"age"`
	Gender    string    `json:"gender"`
	Contact   string    `json:"contact_number"`
	Condition Condition `json:"condition"`
	Symptoms  string    `json:"symptoms"`
	Vitals    Vitals    `json:"vitals"`
}

// Patient is a waiting patient. Everything except PriorityScore is fixed
// once the patient is created.
type Patient struct {
	ID            int       `json:"id"`
	Name          string    `json:"name"`
	Age           int       `json:"age"`
	Gender        string    `json:"gender"`
	Contact       string    `json:"contact_number"`
	Condition     Condition `json:"condition"`
	Symptoms      string    `json:"symptoms"`
	Vitals        Vitals    `json:"vitals"`
	ArrivalTime   time.Time `json:"arrival_time"`
	PriorityScore int       `json:"priority_score"`

	seq uint64
}

func newPatient(id int, a Attributes, arrival time.Time) *Patient {
	return &Patient{
		ID:          id,
		Name:        a.Name,
		Age:         a.Age,
		Gender:      a.Gender,
		Contact:     a.Contact,
		Condition:   a.Condition,
		Symptoms:    a.Symptoms,
		Vitals:      a.Vitals,
		ArrivalTime: arrival,
	}
}

// ArrivalLayout matches the ctime(3) rendering used in discharge logs.
const ArrivalLayout = "Mon Jan _2 15:04:05 2006"

// DischargeRecord is the immutable snapshot handed to a DischargeSink.
type DischargeRecord struct {
	RecordID         uuid.UUID `db:"id" json:"record_id"`
	PatientID        int       `db:"patient_id" json:"patient_id"`
	Name             string    `db:"name" json:"name"`
	Age              int       `db:"age" json:"age"`
	Gender           string    `db:"gender" json:"gender"`
	Contact          string    `db:"contact_number" json:"contact_number"`
	Condition        Condition `db:"condition" json:"condition"`
	Symptoms         string    `db:"symptoms" json:"symptoms"`
	Vitals           Vitals    `json:"vitals"`
	PriorityScore    int       `db:"priority_score" json:"priority_score"`
	ArrivalTime      time.Time `db:"arrival_time" json:"arrival_time"`
	ArrivalFormatted string    `json:"arrival_formatted"`
	DischargedAt     time.Time `db:"discharged_at" json:"discharged_at"`
}

func newDischargeRecord(p *Patient, at time.Time) *DischargeRecord {
	return &DischargeRecord{
		RecordID:         uuid.New(),
		PatientID:        p.ID,
		Name:             p.Name,
		Age:              p.Age,
		Gender:           p.Gender,
		Contact:          p.Contact,
		Condition:        p.Condition,
		Symptoms:         p.Symptoms,
		Vitals:           p.Vitals,
		PriorityScore:    p.PriorityScore,
		ArrivalTime:      p.ArrivalTime,
		ArrivalFormatted: p.ArrivalTime.Format(ArrivalLayout),
		DischargedAt:     at,
	}
}

// QueueEntry is one row of the waiting-line display.
type QueueEntry struct {
	Position      int    `json:"position"`
	PatientID     int    `json:"patient_id"`
	Name          string `json:"name"`
	PriorityScore int    `json:"priority_score"`
}

// Stats summarises the queue counters.
type Stats struct {
	TotalAdmitted int `json:"total_admitted"`
	Waiting       int `json:"waiting"`
}
