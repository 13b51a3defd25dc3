package mysql

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	xerrors "agentic-browser/internal/errors"
	"agentic-browser/internal/job"
	"agentic-browser/internal/pipeline"
)

var jobRowColumns = []string{"id", "input", "status", "capability", "attempts", "max_retries", "warnings_count",
	"evidence_path", "response", "last_error", "error_code", "created_at", "updated_at"}

func jobRow(id, status string, attempts, maxRetries int64) []driver.Value {
	return []driver.Value{id, `{"job_id":"` + id + `","query":"taxa selic"}`, status, "researcher", attempts, maxRetries, int64(1),
		"/e/" + id + ".zip", "resposta", nil, "", int64(10), int64(20)}
}

func fixedRepo(t *testing.T, ops []mockOperation) (*JobRepository, *queueDriver) {
	t.Helper()
	db, drv := newMockDB(t, ops)
	t.Cleanup(func() { db.Close() })
	repo := NewJobRepository(db)
	repo.now = func() time.Time { return time.Unix(100, 0) }
	return repo, drv
}

func TestJobRepositoryCreate(t *testing.T) {
	t.Parallel()

	repo, drv := fixedRepo(t, []mockOperation{execOp(insertJobSQL, mockResult{rowsAffected: 1})})
	defer drv.assertConsumed(t)

	j := &job.Job{ID: "job-1", Input: pipeline.Input{Query: "cdb"}, Status: job.StatusPending, MaxRetries: 3}
	if err := repo.Create(context.Background(), j); err != nil {
		t.Fatalf("create: %v", err)
	}
	if j.CreatedAt != 100 || j.UpdatedAt != 100 {
		t.Fatalf("timestamps not set: %+v", j)
	}
}

func TestJobRepositoryGet(t *testing.T) {
	t.Parallel()

	repo, drv := fixedRepo(t, []mockOperation{
		queryOp(selectJobSQL, mockRowsData{columns: jobRowColumns, values: [][]driver.Value{jobRow("job-1", "succeeded", 1, 3)}}),
		queryOp(selectJobSQL, mockRowsData{columns: jobRowColumns}),
	})
	defer drv.assertConsumed(t)

	got, err := repo.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != job.StatusSucceeded || got.Input.Query != "taxa selic" || got.EvidencePath != "/e/job-1.zip" || got.LastError != "" {
		t.Fatalf("unexpected job: %+v", got)
	}

	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, job.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestJobRepositoryClaim(t *testing.T) {
	t.Parallel()

	repo, drv := fixedRepo(t, []mockOperation{
		execOp(claimJobSQL, mockResult{rowsAffected: 1}),
		queryOp(selectJobSQL, mockRowsData{columns: jobRowColumns, values: [][]driver.Value{jobRow("job-1", "running", 1, 3)}}),
		execOp(claimJobSQL, mockResult{rowsAffected: 0}),
		queryOp(selectJobSQL, mockRowsData{columns: jobRowColumns, values: [][]driver.Value{jobRow("job-2", "failed", 3, 3)}}),
	})
	defer drv.assertConsumed(t)

	claimed, err := repo.Claim(context.Background(), "job-1")
	if err != nil || claimed.Status != job.StatusRunning {
		t.Fatalf("unexpected claim: %+v %v", claimed, err)
	}
	if _, err := repo.Claim(context.Background(), "job-2"); !errors.Is(err, job.ErrExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}
}

func TestJobRepositoryMarkFailedNotFound(t *testing.T) {
	t.Parallel()

	repo, drv := fixedRepo(t, []mockOperation{execOp(failJobSQL, mockResult{rowsAffected: 0})})
	defer drv.assertConsumed(t)

	err := repo.MarkFailed(context.Background(), "missing", xerrors.CodeCollaboratorFailure, "boom", job.Outcome{})
	if !errors.Is(err, job.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestJobRepositoryListAppliesFilters(t *testing.T) {
	t.Parallel()

	want := `SELECT ` + jobColumns + ` FROM job_states WHERE status IN (?) AND capability = ? ORDER BY updated_at DESC, created_at DESC, id DESC LIMIT ? OFFSET ?`
	repo, drv := fixedRepo(t, []mockOperation{
		queryOp(want, mockRowsData{columns: jobRowColumns, values: [][]driver.Value{
			jobRow("job-2", "failed", 1, 3),
			jobRow("job-1", "failed", 2, 3),
		}}),
	})
	defer drv.assertConsumed(t)

	list, err := repo.List(context.Background(), job.BuildListOptions(job.WithStatuses(job.StatusFailed), job.WithCapability("researcher")))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "job-2" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestJobRepositoryStats(t *testing.T) {
	t.Parallel()

	repo, drv := fixedRepo(t, []mockOperation{
		queryOp(statsJobSQL, mockRowsData{
			columns: []string{"total", "pending", "running", "succeeded", "failed", "oldest", "newest"},
			values:  [][]driver.Value{{int64(4), int64(1), int64(0), int64(2), int64(1), int64(10), int64(40)}},
		}),
	})
	defer drv.assertConsumed(t)

	stats, err := repo.Stats(context.Background(), job.ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 4 || stats.Succeeded != 2 || stats.NewestUpdatedAt != 40 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
