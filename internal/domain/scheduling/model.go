package scheduling

import (
	"strconv"
	"strings"
	"time"

	"github.com/chemoward/api/pkg/pagination"
)

// Admission statuses.
const (
	StatusWaiting     = "waiting"
	StatusAdmit       = "admit"
	StatusDischarged  = "discharged"
	StatusMissed      = "missed"
	StatusRescheduled = "rescheduled"
	StatusFollowUp    = "followup"
)

var validStatuses = map[string]bool{
	StatusWaiting:     true,
	StatusAdmit:       true,
	StatusDischarged:  true,
	StatusMissed:      true,
	StatusRescheduled: true,
	StatusFollowUp:    true,
}

func IsValidStatus(s string) bool { return validStatuses[s] }

// PatientSummary is the slice of the patient record returned with each
// appointment.
type PatientSummary struct {
	ID        int64  `json:"id"`
	HN        string `json:"hn"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Status    string `json:"status"`
}

// Appointment maps to the appointment table.
type Appointment struct {
	ID            int64           `json:"id"`
	PatientID     int64           `json:"patientId"`
	Patient       *PatientSummary `json:"patient,omitempty"`
	Date          time.Time       `json:"date"`
	ChemoRegimen  *string         `json:"chemoRegimen"`
	AdmitStatus   string          `json:"admitStatus"`
	AdmitDate     *time.Time      `json:"admitDate"`
	DischargeDate *time.Time      `json:"dischargeDate"`
	ReferHospital *string         `json:"referHospital"`
	ReferDate     *time.Time      `json:"referDate"`
	Note          *string         `json:"note"`
	Version       int             `json:"version"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// PatientRef is a patient id that may arrive as a JSON number or as a
// numeric string, as HTML form values do.
type PatientRef int64

func (r *PatientRef) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*r = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return &ValidationError{Msg: "patientId must be a number"}
	}
	*r = PatientRef(n)
	return nil
}

// CreateRequest is the body of POST /appointments. Timestamps are strings so
// that zone-less values from datetime-local inputs can be parsed locally.
type CreateRequest struct {
	PatientID     PatientRef `json:"patientId"`
	Date          string     `json:"date"`
	ChemoRegimen  *string    `json:"chemoRegimen"`
	AdmitStatus   string     `json:"admitStatus"`
	AdmitDate     *string    `json:"admitDate"`
	DischargeDate *string    `json:"dischargeDate"`
	ReferHospital *string    `json:"referHospital"`
	ReferDate     *string    `json:"referDate"`
	Note          *string    `json:"note"`
}

// UpdateRequest is a general partial edit. Nil fields are left unchanged; an
// empty string clears an optional field. No workflow rules apply.
type UpdateRequest struct {
	PatientID     *PatientRef `json:"patientId"`
	Date          *string     `json:"date"`
	ChemoRegimen  *string     `json:"chemoRegimen"`
	AdmitStatus   *string     `json:"admitStatus"`
	AdmitDate     *string     `json:"admitDate"`
	DischargeDate *string     `json:"dischargeDate"`
	ReferHospital *string     `json:"referHospital"`
	ReferDate     *string     `json:"referDate"`
	Note          *string     `json:"note"`
	// Version, when sent, must match the stored version.
	Version *int `json:"version"`
}

// TransitionRequest is the body of PATCH /appointments/:id/status.
type TransitionRequest struct {
	AdmitStatus   string  `json:"admitStatus"`
	AdmitDate     *string `json:"admitDate"`
	DischargeDate *string `json:"dischargeDate"`
	Note          *string `json:"note"`
	Date          *string `json:"date"`
	Version       *int    `json:"version"`
}

// Filter narrows List. Zero values mean no restriction.
type Filter struct {
	Statuses  []string
	PatientID int64
	From      *time.Time
	To        *time.Time
	Page      pagination.Params
}

// BoardEntry is an appointment with its query-time flags.
type BoardEntry struct {
	*Appointment
	DueToday bool `json:"dueToday"`
	Overdue  bool `json:"overdue"`
}

// Board is the ward dashboard for one day: the waiting queue and the
// admitted ward.
type Board struct {
	Day   string       `json:"date"`
	Queue []BoardEntry `json:"queue"`
	Ward  []BoardEntry `json:"ward"`
}

