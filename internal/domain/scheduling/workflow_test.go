package scheduling

import (
	"errors"
	"testing"
	"time"
)

var fixedNow = time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)

func newTestWorkflow(strict bool) *Workflow {
	w := NewWorkflow(strict)
	w.now = func() time.Time { return fixedNow }
	return w
}

func str(s string) *string { return &s }

func TestWorkflow_AdmitStampsNow(t *testing.T) {
	w := newTestWorkflow(false)
	a := &Appointment{AdmitStatus: StatusWaiting}

	if err := w.Apply(a, TransitionRequest{AdmitStatus: StatusAdmit}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if a.AdmitStatus != StatusAdmit {
		t.Errorf("expected admit, got %s", a.AdmitStatus)
	}
	if a.AdmitDate == nil || !a.AdmitDate.Equal(fixedNow) {
		t.Errorf("expected admitDate %v, got %v", fixedNow, a.AdmitDate)
	}
	if a.DischargeDate != nil {
		t.Errorf("expected dischargeDate unset, got %v", a.DischargeDate)
	}
}

func TestWorkflow_DischargeStampsNow(t *testing.T) {
	w := newTestWorkflow(false)
	admitted := fixedNow.Add(-48 * time.Hour)
	a := &Appointment{AdmitStatus: StatusAdmit, AdmitDate: &admitted}

	if err := w.Apply(a, TransitionRequest{AdmitStatus: StatusDischarged}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if a.DischargeDate == nil || !a.DischargeDate.Equal(fixedNow) {
		t.Errorf("expected dischargeDate %v, got %v", fixedNow, a.DischargeDate)
	}
	if !a.AdmitDate.Equal(admitted) {
		t.Error("admitDate should be untouched by discharge")
	}
}

func TestWorkflow_SuppliedTimestamps(t *testing.T) {
	w := newTestWorkflow(false)
	a := &Appointment{AdmitStatus: StatusWaiting}

	err := w.Apply(a, TransitionRequest{AdmitStatus: StatusAdmit, AdmitDate: str("2024-06-01T08:15:00Z")})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := time.Date(2024, 6, 1, 8, 15, 0, 0, time.UTC)
	if !a.AdmitDate.Equal(want) {
		t.Errorf("expected supplied admitDate %v, got %v", want, a.AdmitDate)
	}
}

func TestWorkflow_OtherTransitionsLeaveTimestamps(t *testing.T) {
	w := newTestWorkflow(false)
	for _, to := range []string{StatusWaiting, StatusMissed, StatusFollowUp} {
		a := &Appointment{AdmitStatus: StatusWaiting}
		if err := w.Apply(a, TransitionRequest{AdmitStatus: to}); err != nil {
			t.Fatalf("%s: %v", to, err)
		}
		if a.AdmitDate != nil || a.DischargeDate != nil {
			t.Errorf("%s: expected no timestamps, got %v / %v", to, a.AdmitDate, a.DischargeDate)
		}
	}
}

func TestWorkflow_Errors(t *testing.T) {
	tests := []struct {
		name   string
		strict bool
		from   string
		req    TransitionRequest
		want   error
	}{
		{"unknown status", false, StatusWaiting, TransitionRequest{AdmitStatus: "sleeping"}, ErrInvalidStatus},
		{"empty status", false, StatusWaiting, TransitionRequest{}, ErrInvalidStatus},
		{"bad admit date", false, StatusWaiting, TransitionRequest{AdmitStatus: StatusAdmit, AdmitDate: str("tomorrow")}, ErrValidation},
		{"admit date on discharge", false, StatusAdmit, TransitionRequest{AdmitStatus: StatusDischarged, AdmitDate: str("2024-06-01")}, ErrValidation},
		{"discharge date on admit", false, StatusWaiting, TransitionRequest{AdmitStatus: StatusAdmit, DischargeDate: str("2024-06-01")}, ErrValidation},
		{"reschedule without note", false, StatusWaiting, TransitionRequest{AdmitStatus: StatusRescheduled, Date: str("2024-06-08T09:00")}, ErrValidation},
		{"reschedule without date", false, StatusWaiting, TransitionRequest{AdmitStatus: StatusRescheduled, Note: str("patient febrile")}, ErrValidation},
		{"strict discharged to admit", true, StatusDischarged, TransitionRequest{AdmitStatus: StatusAdmit}, ErrInvalidTransition},
		{"strict waiting to discharged", true, StatusWaiting, TransitionRequest{AdmitStatus: StatusDischarged}, ErrInvalidTransition},
		{"strict same state", true, StatusWaiting, TransitionRequest{AdmitStatus: StatusWaiting}, ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWorkflow(tt.strict)
			a := &Appointment{AdmitStatus: tt.from}
			err := w.Apply(a, tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if a.AdmitStatus != tt.from || a.AdmitDate != nil || a.DischargeDate != nil {
				t.Errorf("appointment modified on error: %+v", a)
			}
		})
	}
}

func TestWorkflow_PermissiveAllowsAnyValidTarget(t *testing.T) {
	w := newTestWorkflow(false)
	a := &Appointment{AdmitStatus: StatusDischarged}
	if err := w.Apply(a, TransitionRequest{AdmitStatus: StatusAdmit}); err != nil {
		t.Fatalf("permissive mode should allow discharged -> admit: %v", err)
	}
}

func TestWorkflow_Reschedule(t *testing.T) {
	w := newTestWorkflow(true)
	a := &Appointment{AdmitStatus: StatusMissed, Date: fixedNow}

	err := w.Apply(a, TransitionRequest{
		AdmitStatus: StatusRescheduled,
		Date:        str("2024-06-08T09:00:00Z"),
		Note:        str(" low platelets "),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !a.Date.Equal(time.Date(2024, 6, 8, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("expected new date, got %v", a.Date)
	}
	if a.Note == nil || *a.Note != "low platelets" {
		t.Errorf("expected trimmed note, got %v", a.Note)
	}

	// rescheduled -> rescheduled is allowed even in strict mode
	if err := w.Apply(a, TransitionRequest{AdmitStatus: StatusRescheduled, Date: str("2024-06-15"), Note: str("again")}); err != nil {
		t.Errorf("expected second reschedule to pass, got %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]string{
		{StatusWaiting, StatusAdmit},
		{StatusWaiting, StatusMissed},
		{StatusWaiting, StatusRescheduled},
		{StatusMissed, StatusRescheduled},
		{StatusRescheduled, StatusRescheduled},
		{StatusAdmit, StatusDischarged},
		{StatusFollowUp, StatusAdmit},
	}
	for _, p := range allowed {
		if !CanTransition(p[0], p[1]) {
			t.Errorf("expected %s -> %s to be allowed", p[0], p[1])
		}
	}
	denied := [][2]string{
		{StatusDischarged, StatusWaiting},
		{StatusDischarged, StatusAdmit},
		{StatusAdmit, StatusWaiting},
		{StatusMissed, StatusAdmit},
		{"unknown", StatusAdmit},
	}
	for _, p := range denied {
		if CanTransition(p[0], p[1]) {
			t.Errorf("expected %s -> %s to be denied", p[0], p[1])
		}
	}
}

func TestBuildBoard(t *testing.T) {
	day := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	appts := []*Appointment{
		{ID: 1, AdmitStatus: StatusWaiting, Date: time.Date(2024, 5, 30, 9, 0, 0, 0, time.UTC)},
		{ID: 2, AdmitStatus: StatusWaiting, Date: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)},
		{ID: 3, AdmitStatus: StatusWaiting, Date: time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)},
		{ID: 4, AdmitStatus: StatusRescheduled, Date: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
		{ID: 5, AdmitStatus: StatusAdmit, Date: time.Date(2024, 5, 31, 9, 0, 0, 0, time.UTC)},
		{ID: 6, AdmitStatus: StatusDischarged, Date: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)},
		{ID: 7, AdmitStatus: StatusMissed, Date: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)},
		{ID: 8, AdmitStatus: StatusFollowUp, Date: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)},
		{ID: 9, AdmitStatus: StatusRescheduled, Date: time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)},
	}

	b := BuildBoard(day, appts)
	if b.Day != "2024-06-01" {
		t.Errorf("expected day 2024-06-01, got %s", b.Day)
	}

	var queueIDs []int64
	flags := map[int64]BoardEntry{}
	for _, e := range b.Queue {
		queueIDs = append(queueIDs, e.ID)
		flags[e.ID] = e
	}
	if len(queueIDs) != 7 {
		t.Fatalf("expected 7 queued appointments, got %v", queueIDs)
	}
	if len(b.Ward) != 1 || b.Ward[0].ID != 5 {
		t.Errorf("expected only appointment 5 in the ward, got %+v", b.Ward)
	}
	if !flags[1].Overdue || flags[1].DueToday {
		t.Error("appointment 1 should be overdue")
	}
	if !flags[2].DueToday || flags[2].Overdue {
		t.Error("appointment 2 should be due today")
	}
	if flags[3].DueToday || flags[3].Overdue {
		t.Error("appointment 3 is in the future")
	}
	if !flags[4].Overdue || flags[4].DueToday {
		t.Error("rescheduled appointment 4 should be overdue")
	}
	if !flags[9].DueToday || flags[9].Overdue {
		t.Error("rescheduled appointment 9 should be due today")
	}
	if flags[7].DueToday || flags[8].DueToday || flags[8].Overdue {
		t.Error("missed and followup appointments carry no flags")
	}
}
