package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/opawatch/tracker/pkg/socrata"
	"gorm.io/datatypes"
)

type memStore struct {
	refreshes []*Refresh
	updates   []*Update
	nextID    uint
}

func (m *memStore) CreateUpdate(ctx context.Context, u *Update) error {
	m.nextID++
	u.ID = m.nextID
	m.updates = append(m.updates, u)
	return nil
}

func (m *memStore) CreateRefresh(ctx context.Context, ref *Refresh) error {
	m.nextID++
	ref.ID = m.nextID
	m.refreshes = append(m.refreshes, ref)
	return nil
}

func (m *memStore) SaveRefresh(ctx context.Context, ref *Refresh) error {
	for i, existing := range m.refreshes {
		if existing.ID == ref.ID {
			m.refreshes[i] = ref
			return nil
		}
	}
	m.refreshes = append(m.refreshes, ref)
	return nil
}

func (m *memStore) LastRefresh(ctx context.Context) (*Refresh, error) {
	var last *Refresh
	for _, ref := range m.refreshes {
		if last == nil || ref.RefreshDate.After(last.RefreshDate) {
			last = ref
		}
	}
	return last, nil
}

func (m *memStore) LastCompletedRefresh(ctx context.Context) (*Refresh, error) {
	var last *Refresh
	for _, ref := range m.refreshes {
		if ref.Status != RefreshCompleted {
			continue
		}
		if last == nil || ref.RefreshDate.After(last.RefreshDate) {
			last = ref
		}
	}
	return last, nil
}

type fakeFetcher struct {
	calls []string
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]socrata.Row, error) {
	f.calls = append(f.calls, url)
	return nil, f.err
}

type fakeUpdater struct {
	typ     UpdateType
	updates []*Update
	err     error
	calls   int
}

func (f *fakeUpdater) UpdateType() UpdateType {
	return f.typ
}

func (f *fakeUpdater) UpdateURL(since time.Time) string {
	return fmt.Sprintf("fake://%s?since=%s", f.typ, since.Format(time.RFC3339))
}

func (f *fakeUpdater) Process(ctx context.Context, rows []socrata.Row, batch time.Time) ([]*Update, error) {
	f.calls++
	return f.updates, f.err
}

func newTestService(store Store, fetcher RowFetcher, updaters ...Updater) *Service {
	return NewService(store, fetcher, updaters, nil, nil, time.Hour, 10*time.Minute)
}

func ccsUpdate(eventDate time.Time) *Update {
	return &Update{
		Type:      CCSPublished,
		CaseNum:   "2021OPA-0281",
		EventDate: eventDate,
		Officers:  datatypes.JSONSlice[string]{},
	}
}

func TestIsDue(t *testing.T) {
	now := time.Now()
	svc := newTestService(&memStore{}, &fakeFetcher{})

	cases := []struct {
		name    string
		refresh *Refresh
		want    bool
	}{
		{"no prior refresh uses seed path", nil, false},
		{"completed, interval not reached", &Refresh{Status: RefreshCompleted, RefreshDate: now.Add(-50 * time.Minute)}, false},
		{"completed, interval reached", &Refresh{Status: RefreshCompleted, RefreshDate: now.Add(-70 * time.Minute)}, true},
		{"failed, retry interval not reached", &Refresh{Status: RefreshFailed, RefreshDate: now.Add(-5 * time.Minute)}, false},
		{"failed, retry interval reached", &Refresh{Status: RefreshFailed, RefreshDate: now.Add(-15 * time.Minute)}, true},
		{"started, retry interval reached", &Refresh{Status: RefreshStarted, RefreshDate: now.Add(-15 * time.Minute)}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := svc.IsDue(tc.refresh, now); got != tc.want {
				t.Fatalf("IsDue = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDoUpdateWatermarks(t *testing.T) {
	now := time.Now()
	weekAgo := now.Add(-7 * 24 * time.Hour)
	twoWeeksAgo := now.Add(-14 * 24 * time.Hour)

	cases := []struct {
		name          string
		eventDates    []time.Time
		wantWatermark time.Time
		wantCount     int
	}{
		{"no updates carries baseline forward", nil, weekAgo, 0},
		{"older event does not move watermark backward", []time.Time{twoWeeksAgo}, weekAgo, 1},
		{"single new event", []time.Time{now}, now, 1},
		{"duplicate timestamps", []time.Time{now, now}, now, 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &memStore{}
			baseline := &Refresh{Status: RefreshCompleted, RefreshDate: weekAgo}
			mark := weekAgo
			baseline.SetWatermark(CCSPublished, &mark)

			var updates []*Update
			for _, d := range tc.eventDates {
				updates = append(updates, ccsUpdate(d))
			}
			updater := &fakeUpdater{typ: CCSPublished, updates: updates}
			svc := newTestService(store, &fakeFetcher{}, updater)

			svc.DoUpdate(context.Background(), baseline, now)

			if len(store.refreshes) != 1 {
				t.Fatalf("expected exactly one refresh row, got %d", len(store.refreshes))
			}
			refresh := store.refreshes[0]
			if refresh.Status != RefreshCompleted {
				t.Fatalf("status = %s", refresh.Status)
			}
			if refresh.Updates != tc.wantCount {
				t.Fatalf("updates = %d, want %d", refresh.Updates, tc.wantCount)
			}
			got := refresh.Watermark(CCSPublished)
			if got == nil || !got.Equal(tc.wantWatermark) {
				t.Fatalf("watermark = %v, want %v", got, tc.wantWatermark)
			}
			if len(store.updates) != tc.wantCount {
				t.Fatalf("persisted %d updates, want %d", len(store.updates), tc.wantCount)
			}
		})
	}
}

func TestDoUpdateFailureMarksRefreshFailed(t *testing.T) {
	now := time.Now()
	weekAgo := now.Add(-7 * 24 * time.Hour)
	store := &memStore{}
	baseline := &Refresh{Status: RefreshCompleted, RefreshDate: weekAgo}

	good := &fakeUpdater{typ: CCSPublished, updates: []*Update{ccsUpdate(now)}}
	bad := &fakeUpdater{typ: ComplaintFiled, err: errors.New("source exploded")}
	skipped := &fakeUpdater{typ: InvestigationClosed}

	svc := newTestService(store, &fakeFetcher{}, good, bad, skipped)
	svc.DoUpdate(context.Background(), baseline, now)

	if len(store.refreshes) != 1 {
		t.Fatalf("expected one refresh row, got %d", len(store.refreshes))
	}
	refresh := store.refreshes[0]
	if refresh.Status != RefreshFailed {
		t.Fatalf("status = %s, want FAILED", refresh.Status)
	}
	// Partial progress stays: the first updater's rows and watermark stick,
	// the failed and skipped sources never advance.
	if len(store.updates) != 1 {
		t.Fatalf("persisted %d updates, want 1", len(store.updates))
	}
	if refresh.Watermark(CCSPublished) == nil {
		t.Fatal("completed source watermark should be set")
	}
	if refresh.Watermark(ComplaintFiled) != nil || refresh.Watermark(InvestigationClosed) != nil {
		t.Fatal("failed/skipped source watermarks should stay unset")
	}
	if skipped.calls != 0 {
		t.Fatal("updaters after the failure should not run")
	}
}

func TestUpdateSeedsOnFirstRun(t *testing.T) {
	now := time.Now()
	store := &memStore{}
	fetcher := &fakeFetcher{}
	svc := newTestService(store, fetcher, &fakeUpdater{typ: CCSPublished})

	svc.Update(context.Background(), now)

	if len(fetcher.calls) != 0 {
		t.Fatal("seeding must not hit the network")
	}
	if len(store.refreshes) != 1 {
		t.Fatalf("expected seeded refresh, got %d rows", len(store.refreshes))
	}
	seeded := store.refreshes[0]
	if seeded.Status != RefreshCompleted {
		t.Fatalf("seed status = %s", seeded.Status)
	}
	wantDate := now.Add(-7 * 24 * time.Hour)
	if !seeded.RefreshDate.Equal(wantDate) {
		t.Fatalf("seed refresh_date = %v, want %v", seeded.RefreshDate, wantDate)
	}
	mark := seeded.Watermark(CCSPublished)
	if mark == nil || !mark.Equal(wantDate) {
		t.Fatalf("seed watermark = %v, want %v", mark, wantDate)
	}
}

func TestUpdateIsIdempotentWhenNotDue(t *testing.T) {
	now := time.Now()
	store := &memStore{}
	baseline := &Refresh{Status: RefreshCompleted, RefreshDate: now.Add(-2 * time.Hour)}
	mark := now.Add(-2 * time.Hour)
	baseline.SetWatermark(CCSPublished, &mark)
	store.CreateRefresh(context.Background(), baseline)

	fetcher := &fakeFetcher{}
	svc := newTestService(store, fetcher, &fakeUpdater{typ: CCSPublished})

	svc.Update(context.Background(), now)
	if len(fetcher.calls) != 1 {
		t.Fatalf("first trigger should refresh once, fetched %d times", len(fetcher.calls))
	}

	// Immediately after a completed refresh nothing is due.
	svc.Update(context.Background(), now)
	if len(fetcher.calls) != 1 {
		t.Fatalf("second trigger should be a no-op, fetched %d times", len(fetcher.calls))
	}
}

func TestUpdateRebasesOnLastCompletedAfterFailure(t *testing.T) {
	now := time.Now()
	store := &memStore{}

	completedMark := now.Add(-3 * time.Hour)
	completed := &Refresh{Status: RefreshCompleted, RefreshDate: now.Add(-3 * time.Hour)}
	completed.SetWatermark(CCSPublished, &completedMark)
	store.CreateRefresh(context.Background(), completed)

	failedMark := now.Add(-20 * time.Minute)
	failed := &Refresh{Status: RefreshFailed, RefreshDate: now.Add(-20 * time.Minute)}
	failed.SetWatermark(CCSPublished, &failedMark)
	store.CreateRefresh(context.Background(), failed)

	fetcher := &fakeFetcher{}
	svc := newTestService(store, fetcher, &fakeUpdater{typ: CCSPublished})

	svc.Update(context.Background(), now)

	if len(fetcher.calls) != 1 {
		t.Fatalf("expected a retry fetch, got %d", len(fetcher.calls))
	}
	wantSince := fmt.Sprintf("since=%s", completedMark.Format(time.RFC3339))
	if got := fetcher.calls[0]; !strings.Contains(got, wantSince) {
		t.Fatalf("retry should re-base on last completed watermark, url = %s", got)
	}
}
