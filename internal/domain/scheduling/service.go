package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Service struct {
	repo     Repository
	patients PatientChecker
	workflow *Workflow
	logger   zerolog.Logger
}

func NewService(repo Repository, patients PatientChecker, wf *Workflow, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		workflow: wf,
		logger:   logger.With().Str("component", "scheduling").Logger(),
	}
}

// Create books an appointment for an existing patient. admitStatus
// defaults to waiting.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Appointment, error) {
	a := &Appointment{
		PatientID:     int64(req.PatientID),
		AdmitStatus:   strings.TrimSpace(req.AdmitStatus),
		ChemoRegimen:  trimmed(req.ChemoRegimen),
		ReferHospital: trimmed(req.ReferHospital),
		Note:          trimmed(req.Note),
	}
	if a.AdmitStatus == "" {
		a.AdmitStatus = StatusWaiting
	}
	if !IsValidStatus(a.AdmitStatus) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, req.AdmitStatus)
	}

	if strings.TrimSpace(req.Date) == "" {
		return nil, &ValidationError{Msg: "date is required"}
	}
	date, err := parseTimestamp("date", &req.Date)
	if err != nil {
		return nil, err
	}
	a.Date = *date
	if a.ChemoRegimen == nil && a.AdmitStatus != StatusFollowUp {
		return nil, &ValidationError{Msg: "chemoRegimen is required"}
	}
	if a.AdmitDate, err = parseTimestamp("admitDate", req.AdmitDate); err != nil {
		return nil, err
	}
	if a.DischargeDate, err = parseTimestamp("dischargeDate", req.DischargeDate); err != nil {
		return nil, err
	}
	if a.ReferDate, err = parseTimestamp("referDate", req.ReferDate); err != nil {
		return nil, err
	}
	if err := checkStampedDates(a.AdmitStatus, a.AdmitDate, a.DischargeDate); err != nil {
		return nil, err
	}
	now := s.workflow.now()
	if a.AdmitStatus == StatusAdmit && a.AdmitDate == nil {
		a.AdmitDate = &now
	}
	if a.AdmitStatus == StatusDischarged && a.DischargeDate == nil {
		a.DischargeDate = &now
	}

	if err := s.checkPatient(ctx, a.PatientID); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	created, err := s.repo.GetByID(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("reload appointment %d: %w", a.ID, err)
	}
	s.logger.Info().Int64("appointment_id", a.ID).Int64("patient_id", a.PatientID).
		Str("status", a.AdmitStatus).Msg("appointment created")
	return created, nil
}

func (s *Service) checkPatient(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrUnknownPatient
	}
	ok, err := s.patients.PatientExists(ctx, id)
	if err != nil {
		return fmt.Errorf("check patient %d: %w", id, err)
	}
	if !ok {
		return ErrUnknownPatient
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Appointment, int, error) {
	for _, st := range f.Statuses {
		if !IsValidStatus(st) {
			return nil, 0, fmt.Errorf("%w: %q", ErrInvalidStatus, st)
		}
	}
	return s.repo.List(ctx, f)
}

// Board returns the waiting queue and admitted ward for the day containing
// day. It is computed from current rows on every call.
func (s *Service) Board(ctx context.Context, day time.Time) (*Board, error) {
	appts, _, err := s.repo.List(ctx, Filter{
		Statuses: []string{StatusWaiting, StatusRescheduled, StatusMissed, StatusFollowUp, StatusAdmit},
	})
	if err != nil {
		return nil, err
	}
	return BuildBoard(day, appts), nil
}

// Update applies a general edit. Any field, admitStatus included, may change
// without workflow checks; the status must still be a known value.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Version != nil && *req.Version != a.Version {
		return nil, ErrConflict
	}
	if err := s.applyUpdate(ctx, a, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	if a.Patient == nil {
		return s.repo.GetByID(ctx, id)
	}
	return a, nil
}

func (s *Service) applyUpdate(ctx context.Context, a *Appointment, req UpdateRequest) error {
	if req.PatientID != nil && int64(*req.PatientID) != a.PatientID {
		if err := s.checkPatient(ctx, int64(*req.PatientID)); err != nil {
			return err
		}
		a.PatientID = int64(*req.PatientID)
		a.Patient = nil
	}
	if req.AdmitStatus != nil {
		st := strings.TrimSpace(*req.AdmitStatus)
		if !IsValidStatus(st) {
			return fmt.Errorf("%w: %q", ErrInvalidStatus, *req.AdmitStatus)
		}
		a.AdmitStatus = st
	}
	if req.Date != nil {
		d, err := parseTimestamp("date", req.Date)
		if err != nil {
			return err
		}
		if d == nil {
			return &ValidationError{Msg: "date cannot be cleared"}
		}
		a.Date = *d
	}

	for _, f := range []struct {
		name string
		in   *string
		dst  **time.Time
	}{
		{"admitDate", req.AdmitDate, &a.AdmitDate},
		{"dischargeDate", req.DischargeDate, &a.DischargeDate},
		{"referDate", req.ReferDate, &a.ReferDate},
	} {
		if f.in == nil {
			continue
		}
		t, err := parseTimestamp(f.name, f.in)
		if err != nil {
			return err
		}
		*f.dst = t
	}

	if req.ChemoRegimen != nil {
		a.ChemoRegimen = trimmed(req.ChemoRegimen)
	}
	if req.ReferHospital != nil {
		a.ReferHospital = trimmed(req.ReferHospital)
	}
	if req.Note != nil {
		a.Note = trimmed(req.Note)
	}
	return nil
}

// Transition runs a workflow status change. The write is guarded by the
// version read here, so of two concurrent transitions only one succeeds.
func (s *Service) Transition(ctx context.Context, id int64, req TransitionRequest) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Version != nil && *req.Version != a.Version {
		return nil, ErrConflict
	}
	from := a.AdmitStatus
	if err := s.workflow.Apply(a, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Info().Int64("appointment_id", id).Str("from", from).Str("to", a.AdmitStatus).
		Int("version", a.Version).Msg("appointment status changed")
	return a, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Warn().Int64("appointment_id", id).Msg("appointment deleted")
	return nil
}
