package triage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler(caps Capacities, sink DischargeSink) (*Handler, *echo.Echo) {
	svc, _ := newTestService(caps, sink)
	return NewHandler(svc), echo.New()
}

const admitBody = `{"name":"Jean Dupont","age":70,"gender":"homme","contact_number":"20123456",
	"condition":3,"symptoms":"chest pain","vitals":{"heart_rate":80,"blood_pressure":100,"oxygen_saturation":95}}`

func jsonContext(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

func TestHandler_AdmitPatient(t *testing.T) {
	h, e := newTestHandler(DefaultCapacities, NewMemorySink())
	c, rec := jsonContext(e, http.MethodPost, "/", admitBody)

	if err := h.AdmitPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var p Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.ID != 1 || p.PriorityScore != 70 || p.Gender != "Homme" {
		t.Errorf("unexpected patient %+v", p)
	}
}

func TestHandler_AdmitPatient_Invalid(t *testing.T) {
	h, e := newTestHandler(DefaultCapacities, NewMemorySink())
	body := strings.Replace(admitBody, `"age":70`, `"age":200`, 1)
	c, _ := jsonContext(e, http.MethodPost, "/", body)

	err := h.AdmitPatient(c)
	if code := httpCode(t, err); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
	if h.svc.Stats().TotalAdmitted != 0 {
		t.Error("invalid admission must not create a patient")
	}
}

func TestHandler_AdmitPatient_MalformedJSON(t *testing.T) {
	h, e := newTestHandler(DefaultCapacities, NewMemorySink())
	c, _ := jsonContext(e, http.MethodPost, "/", `{"name":`)

	if code := httpCode(t, h.AdmitPatient(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_AdmitPatient_NoResources(t *testing.T) {
	h, e := newTestHandler(Capacities{Doctors: 1, Rooms: 1, Equipment: 1}, NewMemorySink())
	c, _ := jsonContext(e, http.MethodPost, "/", admitBody)
	if err := h.AdmitPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, _ = jsonContext(e, http.MethodPost, "/", admitBody)
	if code := httpCode(t, h.AdmitPatient(c)); code != http.StatusConflict {
		t.Errorf("expected 409, got %d", code)
	}
}

func TestHandler_EmptyQueue(t *testing.T) {
	h, e := newTestHandler(DefaultCapacities, NewMemorySink())

	for name, fn := range map[string]echo.HandlerFunc{
		"peek":      h.PeekNext,
		"estimate":  h.EstimateWait,
		"discharge": h.DischargeNext,
	} {
		t.Run(name, func(t *testing.T) {
			c, _ := jsonContext(e, http.MethodGet, "/", "")
			if code := httpCode(t, fn(c)); code != http.StatusNotFound {
				t.Errorf("expected 404, got %d", code)
			}
		})
	}
}

func TestHandler_QueueLifecycle(t *testing.T) {
	h, e := newTestHandler(DefaultCapacities, NewMemorySink())
	c, _ := jsonContext(e, http.MethodPost, "/", admitBody)
	if err := h.AdmitPatient(c); err != nil {
		t.Fatal(err)
	}

	c, rec := jsonContext(e, http.MethodGet, "/", "")
	if err := h.ListQueue(c); err != nil {
		t.Fatal(err)
	}
	var list struct {
		Entries []QueueEntry `json:"entries"`
		Stats   Stats        `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Entries) != 1 || list.Stats.Waiting != 1 || list.Entries[0].PriorityScore != 70 {
		t.Errorf("unexpected queue %+v", list)
	}

	c, rec = jsonContext(e, http.MethodGet, "/", "")
	if err := h.EstimateWait(c); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Body.String(), `"minutes":35`) {
		t.Errorf("unexpected estimate body %s", rec.Body.String())
	}

	c, rec = jsonContext(e, http.MethodPost, "/", "")
	if err := h.DischargeNext(c); err != nil {
		t.Fatal(err)
	}
	var resp DischargeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Persisted || resp.Record.PatientID != 1 || resp.Warning != "" {
		t.Errorf("unexpected discharge response %+v", resp)
	}
}

func TestHandler_DischargeNext_SinkFailure(t *testing.T) {
	h, e := newTestHandler(DefaultCapacities, &stubSink{err: errors.New("disk full")})
	c, _ := jsonContext(e, http.MethodPost, "/", admitBody)
	if err := h.AdmitPatient(c); err != nil {
		t.Fatal(err)
	}

	c, rec := jsonContext(e, http.MethodPost, "/", "")
	if err := h.DischargeNext(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var resp DischargeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Persisted || !strings.Contains(resp.Warning, "disk full") {
		t.Errorf("expected an unpersisted record with a warning, got %+v", resp)
	}
	if h.svc.Resources().Doctors.Available != DefaultCapacities.Doctors {
		t.Error("resources must be released even when persisting fails")
	}
}

func TestHandler_GetResource(t *testing.T) {
	h, e := newTestHandler(DefaultCapacities, NewMemorySink())

	c, rec := jsonContext(e, http.MethodGet, "/", "")
	c.SetParamNames("kind")
	c.SetParamValues("rooms")
	if err := h.GetResource(c); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Body.String(), `"available":60`) || !strings.Contains(rec.Body.String(), `"capacity":60`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	c, _ = jsonContext(e, http.MethodGet, "/", "")
	c.SetParamNames("kind")
	c.SetParamValues("nurses")
	if code := httpCode(t, h.GetResource(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandler_GetResources(t *testing.T) {
	h, e := newTestHandler(DefaultCapacities, NewMemorySink())
	c, rec := jsonContext(e, http.MethodGet, "/", "")
	if err := h.GetResources(c); err != nil {
		t.Fatal(err)
	}
	var snap ResourceSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Equipment.Capacity != 80 || snap.Doctors.Available != 30 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestHandler_ListDischarges(t *testing.T) {
	sink := NewMemorySink()
	h, e := newTestHandler(DefaultCapacities, sink)
	for i := 1; i <= 3; i++ {
		if err := sink.Persist(context.Background(), sampleRecord(i)); err != nil {
			t.Fatal(err)
		}
	}

	c, rec := jsonContext(e, http.MethodGet, "/api/v1/discharges?limit=2", "")
	if err := h.ListDischarges(c); err != nil {
		t.Fatal(err)
	}
	if link := rec.Header().Get("Link"); link != `</api/v1/discharges?limit=2&offset=2>; rel="next"` {
		t.Errorf("unexpected Link header %q", link)
	}
	var page struct {
		Data    []*DischargeRecord `json:"data"`
		Total   int                `json:"total"`
		HasMore bool               `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 3 || len(page.Data) != 2 || !page.HasMore || page.Data[0].PatientID != 3 {
		t.Errorf("unexpected page %+v", page)
	}
}

func TestHandler_ListDischarges_PrevAndNextLinks(t *testing.T) {
	sink := NewMemorySink()
	h, e := newTestHandler(DefaultCapacities, sink)
	for i := 1; i <= 3; i++ {
		if err := sink.Persist(context.Background(), sampleRecord(i)); err != nil {
			t.Fatal(err)
		}
	}

	c, rec := jsonContext(e, http.MethodGet, "/api/v1/discharges?limit=1&offset=1", "")
	if err := h.ListDischarges(c); err != nil {
		t.Fatal(err)
	}
	want := `</api/v1/discharges?limit=1&offset=0>; rel="prev", </api/v1/discharges?limit=1&offset=2>; rel="next"`
	if link := rec.Header().Get("Link"); link != want {
		t.Errorf("unexpected Link header %q", link)
	}

	c, rec = jsonContext(e, http.MethodGet, "/api/v1/discharges?limit=2&offset=2", "")
	if err := h.ListDischarges(c); err != nil {
		t.Fatal(err)
	}
	if link := rec.Header().Get("Link"); link != `</api/v1/discharges?limit=2&offset=0>; rel="prev"` {
		t.Errorf("unexpected Link header on last page %q", link)
	}
}

func TestHandler_ListDischarges_Unsupported(t *testing.T) {
	h, e := newTestHandler(DefaultCapacities, &stubSink{})
	c, _ := jsonContext(e, http.MethodGet, "/", "")
	if code := httpCode(t, h.ListDischarges(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, e := newTestHandler(DefaultCapacities, NewMemorySink())
	h.RegisterRoutes(e.Group("/api/v1"))

	want := map[string]bool{
		"POST /api/v1/patients":        false,
		"GET /api/v1/queue":            false,
		"GET /api/v1/queue/next":       false,
		"GET /api/v1/queue/estimate":   false,
		"POST /api/v1/queue/discharge": false,
		"GET /api/v1/resources":        false,
		"GET /api/v1/resources/:kind":  false,
		"GET /api/v1/discharges":       false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		if !found {
			t.Errorf("route %s not registered", route)
		}
	}
}
