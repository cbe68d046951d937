package triage

import (
	"fmt"
	"strings"
)

// ResourceKind identifies one of the three scarce resources.
type ResourceKind int

const (
	Doctors ResourceKind = iota
	Rooms
	Equipment
)

func (k ResourceKind) String() string {
	switch k {
	case Doctors:
		return "doctors"
	case Rooms:
		return "rooms"
	case Equipment:
		return "equipment"
	}
	return fmt.Sprintf("resource(%d)", int(k))
}

// ParseResourceKind accepts the lower-case plural names and their singular
// forms.
func ParseResourceKind(s string) (ResourceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "doctors", "doctor":
		return Doctors, nil
	case "rooms", "room":
		return Rooms, nil
	case "equipment":
		return Equipment, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownResource, s)
}

// Capacities are the fixed pool sizes.
type Capacities struct {
	Doctors   int `json:"doctors"`
	Rooms     int `json:"rooms"`
	Equipment int `json:"equipment"`
}

// DefaultCapacities are the emergency department's stock sizes.
var DefaultCapacities = Capacities{Doctors: 30, Rooms: 60, Equipment: 80}

// ResourceLevel is the availability of a single kind.
type ResourceLevel struct {
	Available int `json:"available"`
	Capacity  int `json:"capacity"`
}

// ResourceSnapshot reports all three kinds at one instant.
type ResourceSnapshot struct {
	Doctors   ResourceLevel `json:"doctors"`
	Rooms     ResourceLevel `json:"rooms"`
	Equipment ResourceLevel `json:"equipment"`
}

// ResourcePool tracks availability against capacity. Reservation is
// all-or-nothing and release never exceeds capacity. It is not safe for
// concurrent use; Service serialises access.
type ResourcePool struct {
	capacity  [3]int
	available [3]int
}

// NewResourcePool returns a pool with every resource fully available.
// Negative capacities are treated as zero.
func NewResourcePool(c Capacities) *ResourcePool {
	p := &ResourcePool{capacity: [3]int{max(c.Doctors, 0), max(c.Rooms, 0), max(c.Equipment, 0)}}
	p.available = p.capacity
	return p
}

// TryReserveAll takes one unit of each kind if all three are available.
// When any kind is exhausted nothing is taken and false is returned.
func (p *ResourcePool) TryReserveAll() bool {
	for _, n := range p.available {
		if n <= 0 {
			return false
		}
	}
	for i := range p.available {
		p.available[i]--
	}
	return true
}

// Release returns one unit of each kind, clamped at capacity.
func (p *ResourcePool) Release() {
	for i := range p.available {
		if p.available[i] < p.capacity[i] {
			p.available[i]++
		}
	}
}

// Availability reports the current and maximum count for kind.
func (p *ResourcePool) Availability(kind ResourceKind) (available, capacity int, err error) {
	if kind < Doctors || kind > Equipment {
		return 0, 0, fmt.Errorf("%w: %d", ErrUnknownResource, int(kind))
	}
	return p.available[kind], p.capacity[kind], nil
}

func (p *ResourcePool) Snapshot() ResourceSnapshot {
	level := func(k ResourceKind) ResourceLevel {
		return ResourceLevel{Available: p.available[k], Capacity: p.capacity[k]}
	}
	return ResourceSnapshot{
		Doctors:   level(Doctors),
		Rooms:     level(Rooms),
		Equipment: level(Equipment),
	}
}
