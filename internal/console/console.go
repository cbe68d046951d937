// Package console is the interactive triage desk: it reads commands and
// patient details from a terminal, re-prompts on invalid input, and drives
// the triage service.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/ertriage/internal/domain/triage"
)

// Console runs the command loop. It is single-user; concurrent stations
// should use the HTTP API against the same service.
type Console struct {
	svc    *triage.Service
	in     *bufio.Scanner
	out    io.Writer
	color  bool
	logger zerolog.Logger
}

type Option func(*Console)

// WithColor enables ANSI colour output.
func WithColor(on bool) Option {
	return func(c *Console) { c.color = on }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Console) { c.logger = l }
}

func New(svc *triage.Service, in io.Reader, out io.Writer, opts ...Option) *Console {
	c := &Console{
		svc:    svc,
		in:     bufio.NewScanner(in),
		out:    out,
		logger: zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run processes commands until quit, end of input, or ctx is done. It only
// returns an error when reading input fails.
func (c *Console) Run(ctx context.Context) error {
	c.printf(styleBanner, "======== Emergency triage desk ========\n")
	c.printMenu()

	for {
		if err := ctx.Err(); err != nil {
			c.footer()
			return nil
		}
		c.printf(styleMenu, "\nCommand: ")
		line, err := c.readLine()
		if errors.Is(err, io.EOF) {
			c.footer()
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		cmd := parseCommand(line)
		if cmd == cmdQuit {
			c.footer()
			return nil
		}
		if err := c.dispatch(ctx, cmd, line); err != nil {
			if errors.Is(err, io.EOF) {
				c.footer()
				return nil
			}
			return err
		}
	}
}

func (c *Console) dispatch(ctx context.Context, cmd command, raw string) error {
	switch cmd {
	case cmdAddPatient:
		return c.addPatient(ctx)
	case cmdEstimateWait:
		c.estimateWait()
	case cmdDoctorAvailability:
		c.availability(triage.Doctors, "Doctors available")
	case cmdEquipmentAvailability:
		c.availability(triage.Equipment, "Medical equipment available")
	case cmdRoomAvailability:
		c.availability(triage.Rooms, "Rooms available")
	case cmdReleasePatient:
		c.releasePatient(ctx)
	case cmdDisplayQueue:
		c.displayQueue()
	case cmdHelp:
		c.printMenu()
	default:
		c.printf(styleWarn, "Unknown command %q. Type help for the list of commands.\n", strings.TrimSpace(raw))
	}
	return nil
}

func (c *Console) addPatient(ctx context.Context) error {
	res := c.svc.Resources()
	if res.Doctors.Available <= 0 || res.Rooms.Available <= 0 || res.Equipment.Available <= 0 {
		c.printf(styleError, "Error: insufficient medical resources, the patient cannot be admitted.\n")
		return nil
	}

	var a triage.Attributes
	steps := []struct {
		prompt string
		set    func(string) error
	}{
		{"Patient name: ", func(s string) error {
			a.Name = s
			return triage.ValidateName(s)
		}},
		{"Age: ", func(s string) error {
			n, err := parseInt("age", s)
			if err != nil {
				return err
			}
			a.Age = n
			return triage.ValidateAge(n)
		}},
		{"Gender (Homme/Femme): ", func(s string) error {
			g, err := triage.NormalizeGender(s)
			a.Gender = g
			return err
		}},
		{"Contact number: ", func(s string) error {
			a.Contact = s
			return triage.ValidateContact(s)
		}},
		{conditionPrompt(), func(s string) error {
			n, err := parseInt("condition", s)
			if err != nil {
				return err
			}
			cond, err := triage.ParseCondition(n)
			a.Condition = cond
			return err
		}},
		{"Symptoms: ", func(s string) error {
			a.Symptoms = s
			return triage.ValidateSymptoms(s)
		}},
		{"Heart rate (40-120 bpm): ", func(s string) error {
			n, err := parseInt("heart_rate", s)
			if err != nil {
				return err
			}
			a.Vitals.HeartRate = n
			return triage.ValidateHeartRate(n)
		}},
		{"Blood pressure (40-200 mmHg): ", func(s string) error {
			n, err := parseInt("blood_pressure", s)
			if err != nil {
				return err
			}
			a.Vitals.BloodPressure = n
			return triage.ValidateBloodPressure(n)
		}},
		{"Oxygen saturation (80-100%): ", func(s string) error {
			n, err := parseInt("oxygen_saturation", s)
			if err != nil {
				return err
			}
			a.Vitals.OxygenSaturation = n
			return triage.ValidateOxygen(n)
		}},
	}

	for _, st := range steps {
		if err := c.ask(st.prompt, st.set); err != nil {
			return err
		}
	}

	p, err := c.svc.Admit(ctx, a)
	switch {
	case errors.Is(err, triage.ErrInsufficientResources):
		c.printf(styleError, "Error: insufficient medical resources, the patient cannot be admitted.\n")
	case err != nil:
		c.printf(styleError, "Error: %v\n", err)
	default:
		c.printf(styleSuccess, "Patient %s added to the waiting line (id %d, priority %d).\n", p.Name, p.ID, p.PriorityScore)
	}
	return nil
}

// ask repeats prompt until set accepts the answer.
func (c *Console) ask(prompt string, set func(string) error) error {
	for {
		c.printf("", "%s", prompt)
		line, err := c.readLine()
		if err != nil {
			return err
		}
		if err := set(strings.TrimSpace(line)); err != nil {
			c.printf(styleWarn, "Error: %v\n", err)
			continue
		}
		return nil
	}
}

func (c *Console) estimateWait() {
	mins, err := c.svc.EstimateWait()
	if errors.Is(err, triage.ErrQueueEmpty) {
		c.printf(styleInfo, "No patient waiting.\n")
		return
	}
	c.printf(styleInfo, "Estimated wait for the next patient: %d minutes.\n", mins)
}

func (c *Console) availability(kind triage.ResourceKind, label string) {
	avail, capacity, err := c.svc.Availability(kind)
	if err != nil {
		c.printf(styleError, "Error: %v\n", err)
		return
	}
	c.printf(styleInfo, "%s: %d of %d\n", label, avail, capacity)
}

func (c *Console) releasePatient(ctx context.Context) {
	rec, err := c.svc.Discharge(ctx)
	switch {
	case errors.Is(err, triage.ErrQueueEmpty):
		c.printf(styleInfo, "No patient to release.\n")
		return
	case errors.Is(err, triage.ErrPersistFailed):
		c.printf(styleWarn, "Warning: discharge record for patient %d was not saved: %v\n", rec.PatientID, err)
	case err != nil:
		c.printf(styleError, "Error: %v\n", err)
		return
	}
	c.printf(styleSuccess, "Patient %s (id %d) released.\n", rec.Name, rec.PatientID)
}

func (c *Console) displayQueue() {
	entries := c.svc.Queue()
	if len(entries) == 0 {
		c.printf(styleInfo, "No patient in the waiting line.\n")
		return
	}
	for _, e := range entries {
		c.printf(styleInfo, "Position %d: Patient ID: %d, Name: %s, Priority: %d\n",
			e.Position, e.PatientID, e.Name, e.PriorityScore)
	}
}

func (c *Console) printMenu() {
	c.printf(styleMenu, "Commands:\n")
	for _, m := range menu {
		fmt.Fprintf(c.out, "  %-24s %s\n", m.name, m.desc)
	}
}

func (c *Console) footer() {
	c.printf(styleBanner, "Emergency triage desk stopped.\n")
}

func (c *Console) readLine() (string, error) {
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			c.logger.Error().Err(err).Msg("console input failed")
			return "", fmt.Errorf("read console input: %w", err)
		}
		return "", io.EOF
	}
	return c.in.Text(), nil
}

func (c *Console) printf(style, format string, args ...interface{}) {
	if c.color && style != "" {
		fmt.Fprint(c.out, style)
		fmt.Fprintf(c.out, format, args...)
		fmt.Fprint(c.out, styleReset)
		return
	}
	fmt.Fprintf(c.out, format, args...)
}

func parseInt(field, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &triage.ValidationError{Field: field, Reason: "must be a whole number"}
	}
	return n, nil
}

func conditionPrompt() string {
	var b strings.Builder
	b.WriteString("Medical condition:\n")
	for _, c := range []triage.Condition{triage.Stable, triage.ModerateRisk, triage.HighRisk, triage.Critical, triage.Pregnant, triage.Elderly} {
		fmt.Fprintf(&b, "  %d : %s\n", int(c), c)
	}
	b.WriteString("Choice: ")
	return b.String()
}
