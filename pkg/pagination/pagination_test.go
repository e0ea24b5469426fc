package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, url string) Params {
	t.Helper()
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, url, nil), httptest.NewRecorder())
	return FromContext(c)
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		url  string
		want Params
	}{
		{"/", Params{}},
		{"/?limit=50&offset=10", Params{Limit: 50, Offset: 10}},
		{"/?limit=abc", Params{}},
		{"/?limit=-5&offset=3", Params{}},
		{"/?offset=10", Params{}},
		{"/?limit=10&offset=-1", Params{Limit: 10}},
		{"/?limit=100000", Params{Limit: MaxLimit}},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := paramsFor(t, tt.url); got != tt.want {
				t.Errorf("FromContext(%s) = %+v, want %+v", tt.url, got, tt.want)
			}
		})
	}
}

func TestParams_SQLLimit(t *testing.T) {
	if got := (Params{}).SQLLimit(); got != nil {
		t.Errorf("expected nil limit for unpaged request, got %v", got)
	}
	if got := (Params{Limit: 20}).SQLLimit(); got != 20 {
		t.Errorf("expected 20, got %v", got)
	}
}

func TestParams_Window(t *testing.T) {
	tests := []struct {
		p                   Params
		n                   int
		wantStart, wantEnd int
	}{
		{Params{}, 7, 0, 7},
		{Params{Limit: 3}, 7, 0, 3},
		{Params{Limit: 3, Offset: 6}, 7, 6, 7},
		{Params{Limit: 3, Offset: 9}, 7, 7, 7},
	}
	for _, tt := range tests {
		start, end := tt.p.Window(tt.n)
		if start != tt.wantStart || end != tt.wantEnd {
			t.Errorf("%+v.Window(%d) = (%d,%d), want (%d,%d)", tt.p, tt.n, start, end, tt.wantStart, tt.wantEnd)
		}
	}
}

func TestParams_SetTotal(t *testing.T) {
	e := echo.New()

	rec := httptest.NewRecorder()
	Params{Limit: 5}.SetTotal(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec), 42)
	if got := rec.Header().Get(TotalCountHeader); got != "42" {
		t.Errorf("expected total header 42, got %q", got)
	}

	rec = httptest.NewRecorder()
	Params{}.SetTotal(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec), 42)
	if got := rec.Header().Get(TotalCountHeader); got != "" {
		t.Errorf("expected no total header when unpaged, got %q", got)
	}
}
