package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newContext(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestFromContext_Defaults(t *testing.T) {
	p := FromContext(newContext("/"))

	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := FromContext(newContext("/?limit=25&offset=10"))

	if p.Limit != 25 {
		t.Errorf("expected limit 25, got %d", p.Limit)
	}
	if p.Offset != 10 {
		t.Errorf("expected offset 10, got %d", p.Offset)
	}
}

func TestFromContext_MaxLimit(t *testing.T) {
	p := FromContext(newContext("/?limit=9999"))

	if p.Limit != MaxLimit {
		t.Errorf("expected limit clamped to %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContext_NegativeOffset(t *testing.T) {
	p := FromContext(newContext("/?offset=-5"))

	if p.Offset != 0 {
		t.Errorf("expected offset 0, got %d", p.Offset)
	}
}

func TestWindow(t *testing.T) {
	cases := []struct {
		name       string
		params     Params
		total      int
		start, end int
	}{
		{"first page", Params{Limit: 10, Offset: 0}, 25, 0, 10},
		{"middle page", Params{Limit: 10, Offset: 10}, 25, 10, 20},
		{"partial last page", Params{Limit: 10, Offset: 20}, 25, 20, 25},
		{"offset past end", Params{Limit: 10, Offset: 50}, 25, 25, 25},
		{"empty total", Params{Limit: 10, Offset: 0}, 0, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end := tc.params.Window(tc.total)
			if start != tc.start || end != tc.end {
				t.Errorf("Window(%d) = (%d, %d), want (%d, %d)",
					tc.total, start, end, tc.start, tc.end)
			}
		})
	}
}

func TestNewResponse_HasMore(t *testing.T) {
	resp := NewResponse([]int{1, 2, 3}, 10, 3, 0)
	if !resp.HasMore {
		t.Error("expected has_more true when more rows remain")
	}

	resp = NewResponse([]int{1, 2, 3}, 10, 3, 7)
	if resp.HasMore {
		t.Error("expected has_more false on the last page")
	}
}
