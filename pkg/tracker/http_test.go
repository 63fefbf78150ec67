package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/opawatch/tracker/pkg/common/models"
)

type fakeUpdateStore struct {
	updates   []Update
	refreshes []Refresh
}

func (f *fakeUpdateStore) ListUpdates(ctx context.Context, limit, offset int) ([]Update, error) {
	if offset >= len(f.updates) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.updates) {
		end = len(f.updates)
	}
	return f.updates[offset:end], nil
}

func (f *fakeUpdateStore) GetUpdate(ctx context.Context, id uint) (*Update, error) {
	for i := range f.updates {
		if f.updates[i].ID == id {
			return &f.updates[i], nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeUpdateStore) ListRefreshes(ctx context.Context, limit, offset int) ([]Refresh, error) {
	return f.refreshes, nil
}

func newTestRouter(store UpdateStore, finder CaseFinder) *mux.Router {
	router := mux.NewRouter()
	NewHTTPHandler(nil, store, finder, 2).Register(router)
	return router
}

func TestListUpdatesPagination(t *testing.T) {
	store := &fakeUpdateStore{updates: []Update{
		{ID: 1, CaseNum: "2021OPA-0001", Type: CCSPublished},
		{ID: 2, CaseNum: "2021OPA-0002", Type: CCSPublished},
		{ID: 3, CaseNum: "2021OPA-0003", Type: ComplaintFiled},
	}}
	router := newTestRouter(store, &fakeFinder{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/updates?page=2", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Items []Update `json:"items"`
		Page  int      `json:"page"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Page != 2 {
		t.Fatalf("page = %d", body.Page)
	}
	if len(body.Items) != 1 || body.Items[0].ID != 3 {
		t.Fatalf("unexpected second page: %v", body.Items)
	}
}

func TestGetUpdate(t *testing.T) {
	store := &fakeUpdateStore{updates: []Update{
		{ID: 7, CaseNum: "2021OPA-0007", Type: InvestigationClosed, EventDate: time.Now()},
	}}
	router := newTestRouter(store, &fakeFinder{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/updates/7", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/updates/999", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing update status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/updates/not-a-number", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", rec.Code)
	}
}

func TestCaseEndpoint(t *testing.T) {
	finder := &fakeFinder{result: &models.CaseResult{
		CaseNum:     "2021OPA-0452",
		Officers:    []string{"1595"},
		Allegations: []string{"Professionalism"},
		Disposition: "Sustained",
	}}
	router := newTestRouter(&fakeUpdateStore{}, finder)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/case?id=2021OPA-0452", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var result models.CaseResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Disposition != "Sustained" {
		t.Fatalf("disposition = %q", result.Disposition)
	}
}

func TestCaseEndpointRejectsMalformedCaseNumber(t *testing.T) {
	router := newTestRouter(&fakeUpdateStore{}, &fakeFinder{})

	for _, raw := range []string{"/case", "/case?id=DROP%20TABLE", "/case?id=OPA-1234"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, raw, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s status = %d, want 400", raw, rec.Code)
		}
	}
}

func TestCaseEndpointAbsentCase(t *testing.T) {
	router := newTestRouter(&fakeUpdateStore{}, &fakeFinder{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/case?id=2021OPA-9999", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
