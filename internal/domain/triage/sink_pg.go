package triage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PGSink stores discharge records in the discharge_record table.
type PGSink struct {
	db queryable
}

func NewPGSink(pool *pgxpool.Pool) *PGSink { return &PGSink{db: pool} }

const dischargeCols = `id, patient_id, name, age, gender, contact_number, condition, symptoms,
	heart_rate, blood_pressure, oxygen_saturation, priority_score, arrival_time, discharged_at`

func scanDischarge(row pgx.Row) (*DischargeRecord, error) {
	var r DischargeRecord
	var cond int
	err := row.Scan(&r.RecordID, &r.PatientID, &r.Name, &r.Age, &r.Gender, &r.Contact, &cond, &r.Symptoms,
		&r.Vitals.HeartRate, &r.Vitals.BloodPressure, &r.Vitals.OxygenSaturation,
		&r.PriorityScore, &r.ArrivalTime, &r.DischargedAt)
	if err != nil {
		return nil, err
	}
	r.Condition = Condition(cond)
	r.ArrivalFormatted = r.ArrivalTime.Format(ArrivalLayout)
	return &r, nil
}

func (s *PGSink) Persist(ctx context.Context, rec *DischargeRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO discharge_record (`+dischargeCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		rec.RecordID, rec.PatientID, rec.Name, rec.Age, rec.Gender, rec.Contact, int(rec.Condition), rec.Symptoms,
		rec.Vitals.HeartRate, rec.Vitals.BloodPressure, rec.Vitals.OxygenSaturation,
		rec.PriorityScore, rec.ArrivalTime, rec.DischargedAt)
	if err != nil {
		return fmt.Errorf("insert discharge_record: %w", err)
	}
	return nil
}

func (s *PGSink) List(ctx context.Context, limit, offset int) ([]*DischargeRecord, int, error) {
	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM discharge_record`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.Query(ctx, `SELECT `+dischargeCols+` FROM discharge_record ORDER BY discharged_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*DischargeRecord
	for rows.Next() {
		r, err := scanDischarge(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, r)
	}
	return items, total, rows.Err()
}
