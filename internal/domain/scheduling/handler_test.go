package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/chemoward/api/internal/platform/auth"
)

func newTestHandler(strict bool) (*Handler, *Service, *echo.Echo) {
	svc, _ := newTestService(strict)
	h := NewHandler(svc, zerolog.Nop())
	h.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local) }
	return h, svc, echo.New()
}

func jsonContext(e *echo.Echo, method, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func setID(c echo.Context, id int64) {
	c.SetParamNames("id")
	c.SetParamValues(strconv.FormatInt(id, 10))
}

func expectHTTPError(t *testing.T, err error, code int) *echo.HTTPError {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	if he.Code != code {
		t.Fatalf("expected %d, got %d (%v)", code, he.Code, he.Message)
	}
	return he
}

// routedServer mounts the appointment routes behind a stand-in for the JWT
// middleware that authenticates every request as role.
func routedServer(h *Handler, role string) *echo.Echo {
	e := echo.New()
	api := e.Group("/api", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithIdentity(c.Request().Context(), auth.Identity{UserID: 7, Role: role})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	h.RegisterRoutes(api)
	return e
}

func TestHandler_CreateAppointment(t *testing.T) {
	h, _, e := newTestHandler(false)
	c, rec := jsonContext(e, http.MethodPost, `{"patientId":1,"date":"2024-06-01T09:00","chemoRegimen":"R-CHOP"}`)

	if err := h.CreateAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var a Appointment
	if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatal(err)
	}
	if a.AdmitStatus != StatusWaiting || a.Patient == nil {
		t.Errorf("unexpected appointment %+v", a)
	}
}

func TestHandler_CreateAppointment_StringPatientID(t *testing.T) {
	h, _, e := newTestHandler(false)
	c, rec := jsonContext(e, http.MethodPost, `{"patientId":"1","date":"2024-06-01","chemoRegimen":"ABVD"}`)

	if err := h.CreateAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_CreateAppointment_UnknownPatient(t *testing.T) {
	h, _, e := newTestHandler(false)
	c, _ := jsonContext(e, http.MethodPost, `{"patientId":999999,"date":"2024-06-01T09:00","chemoRegimen":"R-CHOP"}`)

	he := expectHTTPError(t, h.CreateAppointment(c), http.StatusBadRequest)
	if msg, _ := he.Message.(string); !strings.Contains(msg, "Patient not found") {
		t.Errorf("expected patient-not-found message, got %v", he.Message)
	}
}

func TestHandler_UpdateStatus_Admit(t *testing.T) {
	h, svc, e := newTestHandler(false)
	a := createAppointment(t, svc)

	c, rec := jsonContext(e, http.MethodPatch, `{"admitStatus":"admit"}`)
	setID(c, a.ID)
	if err := h.UpdateStatus(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["admitStatus"] != StatusAdmit {
		t.Errorf("expected admit, got %v", body["admitStatus"])
	}
	if s, ok := body["admitDate"].(string); !ok || s == "" {
		t.Errorf("expected admitDate timestamp, got %v", body["admitDate"])
	}
	if body["dischargeDate"] != nil {
		t.Errorf("expected dischargeDate null, got %v", body["dischargeDate"])
	}
}

func TestHandler_UpdateStatus_Errors(t *testing.T) {
	h, svc, e := newTestHandler(true)
	a := createAppointment(t, svc)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"invalid status", `{"admitStatus":"teleported"}`, http.StatusBadRequest},
		{"strict table", `{"admitStatus":"discharged"}`, http.StatusConflict},
		{"reschedule without note", `{"admitStatus":"rescheduled","date":"2024-06-08"}`, http.StatusBadRequest},
		{"stale version", `{"admitStatus":"admit","version":5}`, http.StatusConflict},
		{"malformed body", `{"admitStatus":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := jsonContext(e, http.MethodPatch, tt.body)
			setID(c, a.ID)
			expectHTTPError(t, h.UpdateStatus(c), tt.code)
		})
	}

	c, _ := jsonContext(e, http.MethodPatch, `{"admitStatus":"admit"}`)
	setID(c, 404)
	expectHTTPError(t, h.UpdateStatus(c), http.StatusNotFound)
}

func TestHandler_UpdateAppointment(t *testing.T) {
	h, svc, e := newTestHandler(false)
	a := createAppointment(t, svc)

	c, rec := jsonContext(e, http.MethodPut, `{"note":"pre-med given","referHospital":"Chulalongkorn"}`)
	setID(c, a.ID)
	if err := h.UpdateAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Appointment
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Note == nil || *got.Note != "pre-med given" || got.Version != 2 {
		t.Errorf("unexpected appointment %+v", got)
	}
}

func TestHandler_ListAppointments_Filters(t *testing.T) {
	h, svc, e := newTestHandler(false)
	a := createAppointment(t, svc)
	createAppointment(t, svc)
	svc.Transition(context.Background(), a.ID, TransitionRequest{AdmitStatus: StatusAdmit})

	req := httptest.NewRequest(http.MethodGet, "/?status=admit&patientId=1", nil)
	rec := httptest.NewRecorder()
	if err := h.ListAppointments(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var items []Appointment
	json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 1 || items[0].ID != a.ID {
		t.Errorf("expected only the admitted appointment, got %d", len(items))
	}

	req = httptest.NewRequest(http.MethodGet, "/?from=yesterday", nil)
	err := h.ListAppointments(e.NewContext(req, httptest.NewRecorder()))
	expectHTTPError(t, err, http.StatusBadRequest)

	req = httptest.NewRequest(http.MethodGet, "/?status=bogus", nil)
	err = h.ListAppointments(e.NewContext(req, httptest.NewRecorder()))
	expectHTTPError(t, err, http.StatusBadRequest)
}

func TestHandler_GetBoard(t *testing.T) {
	h, svc, e := newTestHandler(false)
	createAppointment(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	if err := h.GetBoard(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var b struct {
		Date  string                   `json:"date"`
		Queue []map[string]interface{} `json:"queue"`
		Ward  []map[string]interface{} `json:"ward"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatal(err)
	}
	if b.Date != "2024-06-01" || len(b.Queue) != 1 || len(b.Ward) != 0 {
		t.Fatalf("unexpected board %s", rec.Body.String())
	}
	if b.Queue[0]["dueToday"] != true || b.Queue[0]["admitStatus"] != StatusWaiting {
		t.Errorf("expected flattened entry with dueToday, got %v", b.Queue[0])
	}

	req = httptest.NewRequest(http.MethodGet, "/?date=not-a-date", nil)
	expectHTTPError(t, h.GetBoard(e.NewContext(req, httptest.NewRecorder())), http.StatusBadRequest)
}

func TestRoutes_DeleteRequiresAdmin(t *testing.T) {
	for _, role := range []string{auth.RoleDoctor, auth.RoleNurse} {
		h, svc, _ := newTestHandler(false)
		a := createAppointment(t, svc)
		e := routedServer(h, role)

		req := httptest.NewRequest(http.MethodDelete, "/api/appointments/"+strconv.FormatInt(a.ID, 10), nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Errorf("%s: expected 403, got %d", role, rec.Code)
		}
		if _, err := svc.Get(context.Background(), a.ID); err != nil {
			t.Errorf("%s: appointment should still exist, got %v", role, err)
		}
	}
}

func TestRoutes_AdminDeletes(t *testing.T) {
	h, svc, _ := newTestHandler(false)
	a := createAppointment(t, svc)
	e := routedServer(h, auth.RoleAdmin)

	req := httptest.NewRequest(http.MethodDelete, "/api/appointments/"+strconv.FormatInt(a.ID, 10), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"success":true`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestRoutes_BoardIsNotAnID(t *testing.T) {
	h, _, _ := newTestHandler(false)
	e := routedServer(h, auth.RoleNurse)

	req := httptest.NewRequest(http.MethodGet, "/api/appointments/board?date=2024-06-01", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
