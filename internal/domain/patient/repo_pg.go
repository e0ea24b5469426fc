package patient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chemoward/api/internal/platform/db"
	"github.com/chemoward/api/pkg/datetime"
	"github.com/chemoward/api/pkg/pagination"
)

const hnConstraint = "patient_hn_key"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, hn, first_name, last_name, birth_date, phone, line_id, address,
	status, diagnosis, diagnosis_date, stage, prognosis, treatment_plan, follow_up,
	attachments, is_deleted, created_at, updated_at`

func (r *repoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var (
		p         Patient
		birthDate time.Time
		diagDate  *time.Time
	)
	err := row.Scan(&p.ID, &p.HN, &p.FirstName, &p.LastName, &birthDate, &p.Phone, &p.LineID, &p.Address,
		&p.Status, &p.Diagnosis, &diagDate, &p.Stage, &p.Prognosis, &p.TreatmentPlan, &p.FollowUp,
		&p.Attachments, &p.IsDeleted, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.BirthDate = datetime.NewDate(birthDate)
	if diagDate != nil {
		d := datetime.NewDate(*diagDate)
		p.DiagnosisDate = &d
	}
	if p.Attachments == nil {
		p.Attachments = []Attachment{}
	}
	return &p, nil
}

func (r *repoPG) scanRows(rows pgx.Rows) ([]*Patient, error) {
	defer rows.Close()
	items := []*Patient{}
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func dateArg(d *datetime.Date) interface{} {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.Time
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	if p.Attachments == nil {
		p.Attachments = []Attachment{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (hn, first_name, last_name, birth_date, phone, line_id, address,
			status, diagnosis, diagnosis_date, stage, prognosis, treatment_plan, follow_up, attachments)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING id, created_at, updated_at`,
		p.HN, p.FirstName, p.LastName, p.BirthDate.Time, p.Phone, p.LineID, p.Address,
		p.Status, p.Diagnosis, dateArg(p.DiagnosisDate), p.Stage, p.Prognosis, p.TreatmentPlan, p.FollowUp, p.Attachments,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err, hnConstraint) {
		return ErrDuplicateHN
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *repoPG) GetByIDForUpdate(ctx context.Context, id int64) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) List(ctx context.Context, pg pagination.Params) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient WHERE NOT is_deleted`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patient
		WHERE NOT is_deleted ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, pg.SQLLimit(), pg.Offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.scanRows(rows)
	return items, total, err
}

// Search matches hn, first name, last name or "first last", case-insensitive.
func (r *repoPG) Search(ctx context.Context, query string, pg pagination.Params) ([]*Patient, int, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	where := ` WHERE NOT is_deleted AND (hn ILIKE $1 OR first_name ILIKE $1 OR last_name ILIKE $1
		OR (first_name || ' ' || last_name) ILIKE $1)`

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`+where, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patient`+where+
		` ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, pattern, pg.SQLLimit(), pg.Offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.scanRows(rows)
	return items, total, err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET hn=$2, first_name=$3, last_name=$4, birth_date=$5, phone=$6, line_id=$7,
			address=$8, status=$9, diagnosis=$10, diagnosis_date=$11, stage=$12, prognosis=$13,
			treatment_plan=$14, follow_up=$15, updated_at=NOW()
		WHERE id = $1 AND NOT is_deleted
		RETURNING updated_at`,
		p.ID, p.HN, p.FirstName, p.LastName, p.BirthDate.Time, p.Phone, p.LineID,
		p.Address, p.Status, p.Diagnosis, dateArg(p.DiagnosisDate), p.Stage, p.Prognosis,
		p.TreatmentPlan, p.FollowUp,
	).Scan(&p.UpdatedAt)
	switch {
	case db.IsNoRows(err):
		return ErrNotFound
	case db.IsUniqueViolation(err, hnConstraint):
		return ErrDuplicateHN
	}
	return err
}

func (r *repoPG) SetAttachments(ctx context.Context, id int64, attachments []Attachment) error {
	if attachments == nil {
		attachments = []Attachment{}
	}
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE patient SET attachments = $2, updated_at = NOW() WHERE id = $1 AND NOT is_deleted`, id, attachments)
	if err != nil {
		return fmt.Errorf("set attachments: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE patient SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1 AND NOT is_deleted`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
