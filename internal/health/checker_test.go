package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func TestHTTPCheck_reachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A POST-only payout endpoint still counts as reachable.
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	if err := HTTPCheck(srv.Client(), srv.URL)(context.Background()); err != nil {
		t.Errorf("expected reachable, got %v", err)
	}
}

func TestHTTPCheck_serverError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := HTTPCheck(srv.Client(), srv.URL)(context.Background()); err == nil {
		t.Error("expected probe to fail")
	}
}

func TestCheckAll_degradesAfterThreshold(t *testing.T) {
	checker := New(Config{ProbeTimeout: time.Second, FailThreshold: 3}, zap.NewNop())
	checker.Register("postgres", func(context.Context) error { return errors.New("connection refused") })

	for i := 0; i < 2; i++ {
		checker.CheckAll(context.Background())
	}
	if _, ready := checker.Snapshot(); !ready {
		t.Fatal("expected ready below the threshold")
	}

	checker.CheckAll(context.Background())
	deps, ready := checker.Snapshot()
	if ready {
		t.Fatal("expected not ready at the threshold")
	}
	if deps[0].FailCount != 3 || deps[0].LastError != "connection refused" {
		t.Errorf("unexpected status: %+v", deps[0])
	}
}

func TestCheckAll_recoversOnSuccess(t *testing.T) {
	var calls atomic.Int32
	checker := New(Config{ProbeTimeout: time.Second, FailThreshold: 3}, zap.NewNop())
	checker.Register("payout", func(context.Context) error {
		if calls.Add(1) <= 3 {
			return errors.New("down")
		}
		return nil
	})

	var ups, downs int
	checker.SetMetricsRecord(func(_ string, up bool) {
		if up {
			ups++
		} else {
			downs++
		}
	})

	for i := 0; i < 4; i++ {
		checker.CheckAll(context.Background())
	}

	deps, ready := checker.Snapshot()
	if !ready || !deps[0].Healthy || deps[0].FailCount != 0 {
		t.Errorf("expected healthy after recovery, got %+v", deps[0])
	}
	if ups != 1 || downs != 3 {
		t.Errorf("metrics: ups=%d downs=%d, want 1 and 3", ups, downs)
	}
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	checker := New(Config{FailThreshold: 1}, zap.NewNop())
	checker.Register("badger", func(context.Context) error { return nil })
	checker.Register("postgres", func(context.Context) error { return errors.New("down") })

	r := gin.New()
	r.GET("/readyz", checker.Handler())

	serve := func() (int, map[string]any) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		var body map[string]any
		json.Unmarshal(w.Body.Bytes(), &body)
		return w.Code, body
	}

	if code, _ := serve(); code != http.StatusOK {
		t.Fatalf("before any probe: expected 200, got %d", code)
	}

	checker.CheckAll(context.Background())
	code, body := serve()
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
	deps := body["dependencies"].([]any)
	if len(deps) != 2 || deps[0].(map[string]any)["name"] != "badger" {
		t.Errorf("unexpected dependencies: %v", deps)
	}
}
