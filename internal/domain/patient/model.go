package patient

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/chemoward/api/pkg/datetime"
)

const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
	StatusDeceased = "DECEASED"
)

var validStatuses = map[string]bool{
	StatusActive: true, StatusInactive: true, StatusDeceased: true,
}

// Patient maps to the patient table.
type Patient struct {
	ID            int64           `json:"id"`
	HN            string          `json:"hn"`
	FirstName     string          `json:"firstName"`
	LastName      string          `json:"lastName"`
	BirthDate     datetime.Date   `json:"birthDate"`
	Phone         *string         `json:"phone"`
	LineID        *string         `json:"lineId"`
	Address       *string         `json:"address"`
	Status        string          `json:"status"`
	Diagnosis     *string         `json:"diagnosis"`
	DiagnosisDate *datetime.Date  `json:"diagnosisDate"`
	Stage         *string         `json:"stage"`
	Prognosis     *string         `json:"prognosis"`
	TreatmentPlan TreatmentPlan   `json:"treatmentPlan"`
	FollowUp      json.RawMessage `json:"followUp"`
	Attachments   []Attachment    `json:"attachments"`
	IsDeleted     bool            `json:"isDeleted"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// TreatmentPlan is stored as JSONB. An empty plan serialises as {}.
type TreatmentPlan struct {
	Details        string `json:"details,omitempty"`
	CurrentStatus  string `json:"currentStatus,omitempty"`
	RelapsedNumber *int   `json:"relapsedNumber,omitempty"`
	DiagnosisGroup string `json:"diagnosisGroup,omitempty"`
}

// UnmarshalJSON accepts the plan either as an object or as a JSON string
// holding the object, which is how multipart form clients send it.
// relapsedNumber may be a number or a numeric string.
func (tp *TreatmentPlan) UnmarshalJSON(b []byte) error {
	b, err := unquoteJSON(b)
	if err != nil {
		return err
	}
	if len(b) == 0 || string(b) == "null" {
		*tp = TreatmentPlan{}
		return nil
	}

	var raw struct {
		Details        string          `json:"details"`
		CurrentStatus  string          `json:"currentStatus"`
		RelapsedNumber json.RawMessage `json:"relapsedNumber"`
		DiagnosisGroup string          `json:"diagnosisGroup"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*tp = TreatmentPlan{
		Details:        raw.Details,
		CurrentStatus:  raw.CurrentStatus,
		DiagnosisGroup: raw.DiagnosisGroup,
	}
	rn := strings.Trim(strings.TrimSpace(string(raw.RelapsedNumber)), `"`)
	if rn != "" && rn != "null" {
		n, err := strconv.Atoi(rn)
		if err != nil {
			return &ValidationError{Msg: "relapsedNumber must be a whole number"}
		}
		tp.RelapsedNumber = &n
	}
	return nil
}

// Attachment is one uploaded file. ID is stable for the life of the record;
// Path is the blob store key.
type Attachment struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	ContentType string    `json:"contentType,omitempty"`
	Size        int64     `json:"size,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Update is a partial patient edit. Nil fields are left unchanged.
type Update struct {
	HN            *string         `json:"hn"`
	FirstName     *string         `json:"firstName"`
	LastName      *string         `json:"lastName"`
	BirthDate     *datetime.Date  `json:"birthDate"`
	Phone         *string         `json:"phone"`
	LineID        *string         `json:"lineId"`
	Address       *string         `json:"address"`
	Status        *string         `json:"status"`
	Diagnosis     *string         `json:"diagnosis"`
	DiagnosisDate *datetime.Date  `json:"diagnosisDate"`
	Stage         *string         `json:"stage"`
	Prognosis     *string         `json:"prognosis"`
	TreatmentPlan *TreatmentPlan  `json:"treatmentPlan"`
	FollowUp      json.RawMessage `json:"followUp"`
}

// Apply copies the set fields of u onto p.
func (p *Patient) Apply(u Update) error {
	setString(&p.HN, u.HN)
	setString(&p.FirstName, u.FirstName)
	setString(&p.LastName, u.LastName)
	setString(&p.Status, u.Status)
	if u.BirthDate != nil {
		p.BirthDate = *u.BirthDate
	}
	setOptional(&p.Phone, u.Phone)
	setOptional(&p.LineID, u.LineID)
	setOptional(&p.Address, u.Address)
	setOptional(&p.Diagnosis, u.Diagnosis)
	setOptional(&p.Stage, u.Stage)
	setOptional(&p.Prognosis, u.Prognosis)
	if u.DiagnosisDate != nil {
		if u.DiagnosisDate.IsZero() {
			p.DiagnosisDate = nil
		} else {
			d := *u.DiagnosisDate
			p.DiagnosisDate = &d
		}
	}
	if u.TreatmentPlan != nil {
		p.TreatmentPlan = *u.TreatmentPlan
	}
	if len(u.FollowUp) > 0 {
		fu, err := unquoteJSON(u.FollowUp)
		if err != nil {
			return &ValidationError{Msg: "followUp must be valid JSON"}
		}
		if string(fu) == "null" || len(fu) == 0 {
			p.FollowUp = nil
		} else if !json.Valid(fu) {
			return &ValidationError{Msg: "followUp must be valid JSON"}
		} else {
			p.FollowUp = append(json.RawMessage(nil), fu...)
		}
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

// setOptional stores v, mapping an empty string to NULL.
func setOptional(dst **string, v *string) {
	if v == nil {
		return
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		*dst = nil
		return
	}
	*dst = &s
}

// unquoteJSON turns `"{\"a\":1}"` into `{"a":1}`. Anything else is returned
// trimmed and unchanged.
func unquoteJSON(b []byte) ([]byte, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '"' {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return bytes.TrimSpace([]byte(s)), nil
}
