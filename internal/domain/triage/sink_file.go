package triage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/afero"
)

// RecordSeparator ends every record in the discharge log.
const RecordSeparator = "----------------------------------------"

// FileSink appends human-readable discharge records to a text file, one
// field per line.
type FileSink struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

func NewFileSink(fs afero.Fs, path string) *FileSink {
	return &FileSink{fs: fs, path: path}
}

func (s *FileSink) Path() string { return s.path }

func (s *FileSink) Persist(_ context.Context, rec *DischargeRecord) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Patient ID: %d\n", rec.PatientID)
	fmt.Fprintf(&buf, "Name: %s\n", rec.Name)
	fmt.Fprintf(&buf, "Age: %d\n", rec.Age)
	fmt.Fprintf(&buf, "Gender: %s\n", rec.Gender)
	fmt.Fprintf(&buf, "Contact: %s\n", rec.Contact)
	fmt.Fprintf(&buf, "Condition: %d (%s)\n", int(rec.Condition), rec.Condition)
	fmt.Fprintf(&buf, "Symptoms: %s\n", rec.Symptoms)
	fmt.Fprintf(&buf, "Vital signs: HR %d, BP %d, O2 %d\n",
		rec.Vitals.HeartRate, rec.Vitals.BloodPressure, rec.Vitals.OxygenSaturation)
	fmt.Fprintf(&buf, "Priority: %d\n", rec.PriorityScore)
	fmt.Fprintf(&buf, "Arrival time: %s\n", rec.ArrivalFormatted)
	buf.WriteString(RecordSeparator + "\n")

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fs.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open discharge log %s: %w", s.path, err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("write discharge log %s: %w", s.path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync discharge log %s: %w", s.path, err)
	}
	return f.Close()
}
