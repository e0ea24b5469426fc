package scheduling

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chemoward/api/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const apptCols = `a.id, a.patient_id, a.date, a.chemo_regimen, a.admit_status, a.admit_date,
	a.discharge_date, a.refer_hospital, a.refer_date, a.note, a.version, a.created_at, a.updated_at,
	p.hn, p.first_name, p.last_name, p.status`

const apptFrom = ` FROM appointment a JOIN patient p ON p.id = a.patient_id`

func (r *repoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a  Appointment
		ps PatientSummary
	)
	err := row.Scan(&a.ID, &a.PatientID, &a.Date, &a.ChemoRegimen, &a.AdmitStatus, &a.AdmitDate,
		&a.DischargeDate, &a.ReferHospital, &a.ReferDate, &a.Note, &a.Version, &a.CreatedAt, &a.UpdatedAt,
		&ps.HN, &ps.FirstName, &ps.LastName, &ps.Status)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	ps.ID = a.PatientID
	a.Patient = &ps
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (patient_id, date, chemo_regimen, admit_status, admit_date,
			discharge_date, refer_hospital, refer_date, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id, version, created_at, updated_at`,
		a.PatientID, a.Date, a.ChemoRegimen, a.AdmitStatus, a.AdmitDate,
		a.DischargeDate, a.ReferHospital, a.ReferDate, a.Note,
	).Scan(&a.ID, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if db.IsForeignKeyViolation(err) {
		return ErrUnknownPatient
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Appointment, error) {
	return r.scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+apptFrom+` WHERE a.id = $1 AND NOT p.is_deleted`, id))
}

func (r *repoPG) List(ctx context.Context, f Filter) ([]*Appointment, int, error) {
	where := []string{"NOT p.is_deleted"}
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.Statuses) > 0 {
		where = append(where, "a.admit_status = ANY("+arg(f.Statuses)+")")
	}
	if f.PatientID > 0 {
		where = append(where, "a.patient_id = "+arg(f.PatientID))
	}
	if f.From != nil {
		where = append(where, "a.date >= "+arg(*f.From))
	}
	if f.To != nil {
		where = append(where, "a.date < "+arg(*f.To))
	}
	whereSQL := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+apptFrom+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + apptCols + apptFrom + whereSQL +
		` ORDER BY a.date ASC, a.id ASC LIMIT ` + arg(f.Page.SQLLimit()) + ` OFFSET ` + arg(f.Page.Offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []*Appointment{}
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET patient_id=$3, date=$4, chemo_regimen=$5, admit_status=$6,
			admit_date=$7, discharge_date=$8, refer_hospital=$9, refer_date=$10, note=$11,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at`,
		a.ID, a.Version, a.PatientID, a.Date, a.ChemoRegimen, a.AdmitStatus,
		a.AdmitDate, a.DischargeDate, a.ReferHospital, a.ReferDate, a.Note,
	).Scan(&a.Version, &a.UpdatedAt)
	switch {
	case db.IsNoRows(err):
		return r.missOrConflict(ctx, a.ID)
	case db.IsForeignKeyViolation(err):
		return ErrUnknownPatient
	}
	return err
}

// missOrConflict tells a deleted row from a stale version after a guarded
// update matched nothing.
func (r *repoPG) missOrConflict(ctx context.Context, id int64) error {
	var exists bool
	if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM appointment WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrConflict
	}
	return ErrNotFound
}

func (r *repoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
