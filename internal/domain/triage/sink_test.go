package triage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(id int) *DischargeRecord {
	p := testPatient(Critical, 70, Vitals{HeartRate: 110, BloodPressure: 150, OxygenSaturation: 88}, t0)
	p.ID = id
	p.Name = "Marie Curie"
	p.Symptoms = "chest pain"
	p.PriorityScore = Score(p, t0)
	return newDischargeRecord(p, t0.Add(10*time.Minute))
}

func TestFileSink_Format(t *testing.T) {
	fs := afero.NewMemMapFs()
	sink := NewFileSink(fs, "/var/er/patients_released.txt")

	require.NoError(t, sink.Persist(context.Background(), sampleRecord(1)))

	data, err := afero.ReadFile(fs, "/var/er/patients_released.txt")
	require.NoError(t, err)

	want := strings.Join([]string{
		"Patient ID: 1",
		"Name: Marie Curie",
		"Age: 70",
		"Gender: Femme",
		"Contact: 12345678",
		"Condition: 3 (critical)",
		"Symptoms: chest pain",
		"Vital signs: HR 110, BP 150, O2 88",
		"Priority: 110",
		"Arrival time: Fri Mar  1 08:00:00 2024",
		RecordSeparator,
		"",
	}, "\n")
	assert.Equal(t, want, string(data))
}

func TestFileSink_Appends(t *testing.T) {
	fs := afero.NewMemMapFs()
	sink := NewFileSink(fs, "out.txt")
	ctx := context.Background()

	require.NoError(t, sink.Persist(ctx, sampleRecord(1)))
	require.NoError(t, sink.Persist(ctx, sampleRecord(2)))

	data, err := afero.ReadFile(fs, "out.txt")
	require.NoError(t, err)
	s := string(data)
	assert.Equal(t, 2, strings.Count(s, RecordSeparator))
	assert.Less(t, strings.Index(s, "Patient ID: 1"), strings.Index(s, "Patient ID: 2"))
}

func TestFileSink_OpenFailure(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	sink := NewFileSink(fs, "out.txt")

	err := sink.Persist(context.Background(), sampleRecord(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open discharge log out.txt")
}

func TestService_FileSinkFailureReported(t *testing.T) {
	sink := NewFileSink(afero.NewReadOnlyFs(afero.NewMemMapFs()), "out.txt")
	svc, _ := newTestService(DefaultCapacities, sink)
	ctx := context.Background()

	_, err := svc.Admit(ctx, validAttributes())
	require.NoError(t, err)
	rec, err := svc.Discharge(ctx)
	assert.ErrorIs(t, err, ErrPersistFailed)
	assert.NotNil(t, rec)
	assert.Equal(t, DefaultCapacities.Doctors, svc.Resources().Doctors.Available)
}

func TestMemorySink_ListNewestFirst(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		require.NoError(t, sink.Persist(ctx, sampleRecord(i)))
	}
	assert.Equal(t, 5, sink.Len())

	items, total, err := sink.List(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, items, 2)
	assert.Equal(t, 5, items[0].PatientID)
	assert.Equal(t, 4, items[1].PatientID)

	items, _, err = sink.List(ctx, 10, 4)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].PatientID)

	items, _, err = sink.List(ctx, 10, 9)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMemorySink_ListNegativeOffset(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		require.NoError(t, sink.Persist(ctx, sampleRecord(i)))
	}

	items, total, err := sink.List(ctx, 2, -5)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 2)
	assert.Equal(t, 3, items[0].PatientID)
}

func TestMemorySink_StoresCopy(t *testing.T) {
	sink := NewMemorySink()
	rec := sampleRecord(1)
	require.NoError(t, sink.Persist(context.Background(), rec))
	rec.Name = "changed"

	items, _, _ := sink.List(context.Background(), 1, 0)
	require.Len(t, items, 1)
	assert.Equal(t, "Marie Curie", items[0].Name)
}

type execRecorder struct {
	sql  string
	args []interface{}
	err  error
}

func (e *execRecorder) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (e *execRecorder) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	return nil
}

func (e *execRecorder) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	e.sql = sql
	e.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), e.err
}

func TestPGSink_Persist(t *testing.T) {
	db := &execRecorder{}
	sink := &PGSink{db: db}
	rec := sampleRecord(3)

	require.NoError(t, sink.Persist(context.Background(), rec))
	assert.Contains(t, db.sql, "INSERT INTO discharge_record")
	require.Len(t, db.args, 14)
	assert.Equal(t, rec.RecordID, db.args[0])
	assert.Equal(t, 3, db.args[1])
	assert.Equal(t, int(Critical), db.args[6])
	assert.Equal(t, rec.PriorityScore, db.args[11])
}

func TestPGSink_PersistError(t *testing.T) {
	sink := &PGSink{db: &execRecorder{err: errors.New("connection refused")}}
	err := sink.Persist(context.Background(), sampleRecord(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert discharge_record")
	assert.Contains(t, err.Error(), "connection refused")
}
