package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/scholaris/scholaris-access/internal/jobs"
	"github.com/scholaris/scholaris-access/internal/observability"
)

type stubSweeper struct {
	cutoff  time.Time
	removed int64
	err     error
}

func (s *stubSweeper) SweepExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return s.removed, s.err
}

func TestGrantSweepUsesRetention(t *testing.T) {
	sweeper := &stubSweeper{removed: 7}
	job := NewGrantSweepJob(sweeper, nil, nil)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return now }

	task, err := NewGrantSweepTask(10)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}

	want := now.AddDate(0, 0, -10)
	if !sweeper.cutoff.Equal(want) {
		t.Fatalf("cutoff = %v, want %v", sweeper.cutoff, want)
	}
}

func TestGrantSweepDefaultsRetention(t *testing.T) {
	sweeper := &stubSweeper{}
	job := NewGrantSweepJob(sweeper, nil, nil)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return now }

	task, err := NewGrantSweepTask(0)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !sweeper.cutoff.Equal(now.AddDate(0, 0, -30)) {
		t.Fatalf("expected 30 day default retention, got cutoff %v", sweeper.cutoff)
	}
}

func TestGrantSweepMalformedPayloadSkipsRetry(t *testing.T) {
	job := NewGrantSweepJob(&stubSweeper{}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskGrantSweep, []byte("{not json")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

type stubCounter struct {
	count int64
	err   error
}

func (s *stubCounter) CountOrphans(ctx context.Context) (int64, error) {
	return s.count, s.err
}

type stubGauge struct {
	last int64
	set  bool
}

func (s *stubGauge) SetOrphanUsers(count int64) {
	s.last = count
	s.set = true
}

func TestOrphanScanPublishesGauge(t *testing.T) {
	gauge := &stubGauge{}
	job := NewOrphanScanJob(&stubCounter{count: 3}, gauge, nil, nil)

	task, err := NewOrphanScanTask(time.Now())
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !gauge.set || gauge.last != 3 {
		t.Fatalf("gauge not published, set=%v last=%d", gauge.set, gauge.last)
	}
}

// The worker serves its own /metrics endpoint; the gauge and the job
// collectors must land on that same registry or the scan result is invisible
// to Prometheus.
func TestOrphanScanResultReachableFromScrape(t *testing.T) {
	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	job := NewOrphanScanJob(&stubCounter{count: 3}, metrics, nil, jobMetrics)

	task, err := NewOrphanScanTask(time.Now())
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, "scholaris_orphan_users 3") {
		t.Fatalf("orphan gauge missing from scrape:\n%s", body)
	}
	if !strings.Contains(body, `scholaris_jobs_total{job="tenancy:orphan_scan",status="success"} 1`) {
		t.Fatalf("job run counter missing from scrape:\n%s", body)
	}
}

func TestOrphanScanPropagatesFailure(t *testing.T) {
	job := NewOrphanScanJob(&stubCounter{err: errors.New("db down")}, &stubGauge{}, nil, nil)

	task, err := NewOrphanScanTask(time.Now())
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err == nil {
		t.Fatal("expected error")
	}
}
