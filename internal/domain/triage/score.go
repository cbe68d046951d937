package triage

import "time"

const (
	ageBonus          = 20
	tachycardiaBonus  = 10
	hypertensionBonus = 15
	hypoxiaBonus      = 15
)

// Score computes the urgency score of p as of now. It is pure: the same
// patient and instant always give the same result. The wait-time term adds
// one point per full minute since arrival and is never negative.
func Score(p *Patient, now time.Time) int {
	score := 0

	if p.Age < 5 || p.Age > 65 {
		score += ageBonus
	}

	score += p.Condition.Weight()

	if p.Vitals.HeartRate > 100 {
		score += tachycardiaBonus
	}
	if p.Vitals.BloodPressure > 140 {
		score += hypertensionBonus
	}
	if p.Vitals.OxygenSaturation < 90 {
		score += hypoxiaBonus
	}

	score += WaitMinutes(p.ArrivalTime, now)
	return score
}

// WaitMinutes returns the number of full minutes between arrival and now.
func WaitMinutes(arrival, now time.Time) int {
	elapsed := now.Sub(arrival)
	if elapsed <= 0 {
		return 0
	}
	return int(elapsed / time.Minute)
}
