package triage

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Length limits count characters, not bytes.
const (
	MaxNameLen     = 49
	MaxSymptomsLen = 199
	ContactDigits  = 8
	MinAge         = 0
	MaxAge         = 123
)

// Accepted vital-sign ranges, inclusive.
var (
	HeartRateRange     = [2]int{40, 120}
	BloodPressureRange = [2]int{40, 200}
	OxygenRange        = [2]int{80, 100}
)

// NormalizeGender returns the canonical spelling of an accepted gender value.
func NormalizeGender(g string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(g)) {
	case "homme":
		return "Homme", nil
	case "femme":
		return "Femme", nil
	}
	return "", &ValidationError{Field: "gender", Reason: "must be Homme or Femme"}
}

func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(name) > MaxNameLen {
		return &ValidationError{Field: "name", Reason: fmt.Sprintf("must be at most %d characters", MaxNameLen)}
	}
	for _, r := range name {
		if r != ' ' && !unicode.IsLetter(r) {
			return &ValidationError{Field: "name", Reason: "must contain only letters and spaces"}
		}
	}
	return nil
}

func ValidateAge(age int) error {
	if age < MinAge || age > MaxAge {
		return &ValidationError{Field: "age", Reason: fmt.Sprintf("must be between %d and %d", MinAge, MaxAge)}
	}
	return nil
}

func ValidateContact(contact string) error {
	if len(contact) != ContactDigits {
		return &ValidationError{Field: "contact_number", Reason: fmt.Sprintf("must contain exactly %d digits", ContactDigits)}
	}
	for i := 0; i < len(contact); i++ {
		if contact[i] < '0' || contact[i] > '9' {
			return &ValidationError{Field: "contact_number", Reason: fmt.Sprintf("must contain exactly %d digits", ContactDigits)}
		}
	}
	return nil
}

func ValidateSymptoms(s string) error {
	if strings.TrimSpace(s) == "" {
		return &ValidationError{Field: "symptoms", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(s) > MaxSymptomsLen {
		return &ValidationError{Field: "symptoms", Reason: fmt.Sprintf("must be at most %d characters", MaxSymptomsLen)}
	}
	return nil
}

func validateRange(field string, v int, r [2]int) error {
	if v < r[0] || v > r[1] {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be between %d and %d, got %d", r[0], r[1], v)}
	}
	return nil
}

func ValidateHeartRate(v int) error     { return validateRange("heart_rate", v, HeartRateRange) }
func ValidateBloodPressure(v int) error { return validateRange("blood_pressure", v, BloodPressureRange) }
func ValidateOxygen(v int) error        { return validateRange("oxygen_saturation", v, OxygenRange) }

func (v Vitals) Validate() error {
	if err := ValidateHeartRate(v.HeartRate); err != nil {
		return err
	}
	if err := ValidateBloodPressure(v.BloodPressure); err != nil {
		return err
	}
	return ValidateOxygen(v.OxygenSaturation)
}

// Validate checks every attribute and normalises Gender in place. The
// first failing field is reported.
func (a *Attributes) Validate() error {
	if err := ValidateName(a.Name); err != nil {
		return err
	}
	if err := ValidateAge(a.Age); err != nil {
		return err
	}
	g, err := NormalizeGender(a.Gender)
	if err != nil {
		return err
	}
	a.Gender = g
	if err := ValidateContact(a.Contact); err != nil {
		return err
	}
	if !a.Condition.Valid() {
		return &ValidationError{Field: "condition", Reason: fmt.Sprintf("must be between 0 and 5, got %d", int(a.Condition))}
	}
	if err := ValidateSymptoms(a.Symptoms); err != nil {
		return err
	}
	return a.Vitals.Validate()
}
