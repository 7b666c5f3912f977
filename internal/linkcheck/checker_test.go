package linkcheck

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nabdhq/nabd/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestChecker() *Checker {
	return New(Options{Timeout: 2 * time.Second, Concurrency: 4, Retries: 0}, discardLogger())
}

func TestCheckAllAliveSite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestChecker()
	report, err := c.CheckAll(context.Background(), []storage.Tool{
		{ID: "t1", Title: "Alive", WebsiteURL: srv.URL},
	})
	if err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	if report.Alive != 1 || len(report.Dead) != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestCheckAllNotFoundIsConfirmedDead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newTestChecker()
	report, err := c.CheckAll(context.Background(), []storage.Tool{
		{ID: "t1", Title: "Gone", WebsiteURL: srv.URL},
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.ConfirmedDead != 1 {
		t.Fatalf("report = %+v", report)
	}
	if report.Dead[0].Reason != "HTTP_STATUS" || report.Dead[0].Status != 404 {
		t.Errorf("dead[0] = %+v", report.Dead[0])
	}
}

func TestCheckAllAuthWallIsAlive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestChecker()
	report, err := c.CheckAll(context.Background(), []storage.Tool{
		{ID: "t1", WebsiteURL: srv.URL},
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.Alive != 1 {
		t.Errorf("403 should count as alive: %+v", report)
	}
}

func TestCheckAllHeadFallsBackToGet(t *testing.T) {
	var headCount, getCount atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			headCount.Add(1)
			w.WriteHeader(http.StatusMethodNotAllowed)
		case http.MethodGet:
			getCount.Add(1)
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	c := newTestChecker()
	report, err := c.CheckAll(context.Background(), []storage.Tool{
		{ID: "t1", WebsiteURL: srv.URL},
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.Alive != 1 {
		t.Fatalf("report = %+v", report)
	}
	if headCount.Load() != 1 || getCount.Load() != 1 {
		t.Errorf("head = %d, get = %d", headCount.Load(), getCount.Load())
	}
}

func TestCheckAllRetriesServerErrors(t *testing.T) {
	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && gets.Add(1) >= 2 {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Options{Timeout: 2 * time.Second, Concurrency: 1, Retries: 1}, discardLogger())
	report, err := c.CheckAll(context.Background(), []storage.Tool{
		{ID: "t1", WebsiteURL: srv.URL},
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.Alive != 1 {
		t.Errorf("expected recovery on retry: %+v", report)
	}
}

func TestCheckAllParkedDomain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			// Force the GET path so the body gets inspected.
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><head><title>example.com - This Domain Is For Sale</title></head><body></body></html>`)
	}))
	defer srv.Close()

	c := newTestChecker()
	report, err := c.CheckAll(context.Background(), []storage.Tool{
		{ID: "t1", WebsiteURL: srv.URL},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Dead) != 1 || report.Dead[0].Reason != "PARKED_DOMAIN" {
		t.Fatalf("report = %+v", report)
	}
	if report.Dead[0].ConfirmedDead {
		t.Error("parked domains should stay in the uncertain set")
	}
}

func TestCheckAllInvalidURL(t *testing.T) {
	c := newTestChecker()
	report, err := c.CheckAll(context.Background(), []storage.Tool{
		{ID: "t1", WebsiteURL: "not a url"},
		{ID: "t2", WebsiteURL: ""},
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.ConfirmedDead != 2 {
		t.Fatalf("report = %+v", report)
	}
	for _, d := range report.Dead {
		if d.Reason != "INVALID_URL" {
			t.Errorf("reason = %q", d.Reason)
		}
	}
}

func TestPageTitle(t *testing.T) {
	title, ok := pageTitle(strings.NewReader(`<html><head><title> Parked Domain </title></head></html>`))
	if !ok || title != "Parked Domain" {
		t.Errorf("title = %q, ok = %v", title, ok)
	}

	_, ok = pageTitle(strings.NewReader(`<html><body>no title</body></html>`))
	if ok {
		t.Error("expected no title")
	}
}

type mockCleanupStore struct {
	deleted []string
}

func (m *mockCleanupStore) DeleteTool(id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func TestCleanupDeletesConfirmedOnly(t *testing.T) {
	store := &mockCleanupStore{}
	cleanup := Cleanup{Store: store, Logger: discardLogger()}

	report := Report{Dead: []Result{
		{ToolID: "t1", ConfirmedDead: true},
		{ToolID: "t2", ConfirmedDead: false},
		{ToolID: "t3", ConfirmedDead: true},
	}}

	deleted, err := cleanup.Apply(report)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	if len(store.deleted) != 2 || store.deleted[0] != "t1" || store.deleted[1] != "t3" {
		t.Errorf("deleted ids = %v", store.deleted)
	}
}
