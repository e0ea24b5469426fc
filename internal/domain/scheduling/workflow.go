package scheduling

import (
	"fmt"
	"strings"
	"time"

	"github.com/chemoward/api/pkg/datetime"
)

// transitions lists the moves allowed in strict mode, keyed by current
// status. Discharge is terminal.
var transitions = map[string]map[string]bool{
	StatusWaiting: {
		StatusAdmit: true, StatusMissed: true, StatusRescheduled: true, StatusFollowUp: true,
	},
	StatusMissed: {
		StatusRescheduled: true, StatusWaiting: true,
	},
	StatusRescheduled: {
		StatusRescheduled: true, StatusWaiting: true, StatusAdmit: true, StatusMissed: true,
	},
	StatusFollowUp: {
		StatusWaiting: true, StatusAdmit: true, StatusRescheduled: true,
	},
	StatusAdmit: {
		StatusDischarged: true,
	},
	StatusDischarged: {},
}

// CanTransition reports whether the strict table allows from -> to.
func CanTransition(from, to string) bool {
	return transitions[from][to]
}

// Workflow applies admission status changes to appointments. In permissive
// mode any valid target is accepted regardless of the current status.
type Workflow struct {
	strict bool
	now    func() time.Time
}

func NewWorkflow(strict bool) *Workflow {
	return &Workflow{strict: strict, now: time.Now}
}

func (w *Workflow) Strict() bool { return w.strict }

// Apply moves a to req.AdmitStatus and stamps the admit or discharge time.
// a is only modified when the whole request is valid.
func (w *Workflow) Apply(a *Appointment, req TransitionRequest) error {
	to := strings.TrimSpace(req.AdmitStatus)
	if !IsValidStatus(to) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, req.AdmitStatus)
	}
	from := a.AdmitStatus
	if w.strict && !CanTransition(from, to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}

	admitAt, err := parseTimestamp("admitDate", req.AdmitDate)
	if err != nil {
		return err
	}
	dischargeAt, err := parseTimestamp("dischargeDate", req.DischargeDate)
	if err != nil {
		return err
	}
	if err := checkStampedDates(to, admitAt, dischargeAt); err != nil {
		return err
	}

	note := trimmed(req.Note)
	var newDate *time.Time
	if to == StatusRescheduled {
		newDate, err = parseTimestamp("date", req.Date)
		if err != nil {
			return err
		}
		if newDate == nil || note == nil {
			return &ValidationError{Msg: "Rescheduling requires a new date and a note."}
		}
	}

	now := w.now()
	switch to {
	case StatusAdmit:
		if admitAt == nil {
			admitAt = &now
		}
		a.AdmitDate = admitAt
	case StatusDischarged:
		if dischargeAt == nil {
			dischargeAt = &now
		}
		a.DischargeDate = dischargeAt
	case StatusRescheduled:
		a.Date = *newDate
	}
	if note != nil {
		a.Note = note
	}
	a.AdmitStatus = to
	return nil
}

// checkStampedDates rejects an admit or discharge time supplied for any
// status other than the one that stamps it.
func checkStampedDates(status string, admitAt, dischargeAt *time.Time) error {
	if admitAt != nil && status != StatusAdmit {
		return &ValidationError{Msg: "admitDate can only be given when admitting"}
	}
	if dischargeAt != nil && status != StatusDischarged {
		return &ValidationError{Msg: "dischargeDate can only be given when discharging"}
	}
	return nil
}

// InQueue reports whether status belongs in the waiting queue. Rescheduled
// appointments stay in the queue as well as keeping their own status.
func InQueue(status string) bool {
	switch status {
	case StatusWaiting, StatusRescheduled, StatusMissed, StatusFollowUp:
		return true
	}
	return false
}

// InWard reports whether status means the patient is currently admitted.
func InWard(status string) bool {
	return status == StatusAdmit
}

// Classify computes the board flags of a for the calendar day containing
// day. Only waiting and rescheduled appointments are flagged.
func Classify(a *Appointment, day time.Time) BoardEntry {
	e := BoardEntry{Appointment: a}
	if a.AdmitStatus != StatusWaiting && a.AdmitStatus != StatusRescheduled {
		return e
	}
	start, end := datetime.DayBounds(day)
	at := a.Date.In(day.Location())
	e.DueToday = !at.Before(start) && at.Before(end)
	e.Overdue = at.Before(start)
	return e
}

// BuildBoard splits appts into the waiting queue and the admitted ward for
// day. Discharged appointments appear in neither. Input order is kept.
func BuildBoard(day time.Time, appts []*Appointment) *Board {
	b := &Board{
		Day:   datetime.NewDate(day).String(),
		Queue: []BoardEntry{},
		Ward:  []BoardEntry{},
	}
	for _, a := range appts {
		switch {
		case InQueue(a.AdmitStatus):
			b.Queue = append(b.Queue, Classify(a, day))
		case InWard(a.AdmitStatus):
			b.Ward = append(b.Ward, Classify(a, day))
		}
	}
	return b
}

// parseTimestamp returns nil for an absent or blank value.
func parseTimestamp(field string, v *string) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	t, err := datetime.ParseOptional(*v)
	if err != nil {
		return nil, &ValidationError{Msg: fmt.Sprintf("%s is not a valid date", field)}
	}
	return t, nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}
