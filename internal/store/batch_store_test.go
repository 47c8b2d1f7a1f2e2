package store

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mindhaventaylor/ai-selfi-sub000/internal/domain"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/sqlinline"
)

// statusRows serves one job status per row, enough Rows surface for the
// status scan loop.
type statusRows struct {
	statuses []domain.JobStatus
	pos      int
}

func (r *statusRows) Close()                                       {}
func (r *statusRows) Err() error                                   { return nil }
func (r *statusRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *statusRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *statusRows) Next() bool {
	if r.pos >= len(r.statuses) {
		return false
	}
	r.pos++
	return true
}
func (r *statusRows) Scan(dest ...any) error {
	*(dest[0].(*domain.JobStatus)) = r.statuses[r.pos-1]
	return nil
}
func (r *statusRows) Values() ([]any, error) { return nil, nil }
func (r *statusRows) RawValues() [][]byte    { return nil }
func (r *statusRows) Conn() *pgx.Conn        { return nil }

var _ pgx.Rows = (*statusRows)(nil)

// batchRow scans a minimal batch with the given status.
func batchRow(id string, status domain.BatchStatus) stubRow {
	return stubRow{scan: func(dest ...any) error {
		*(dest[0].(*string)) = id
		*(dest[9].(*domain.BatchStatus)) = status
		return nil
	}}
}

func finalizeCalls(exec *stubExecutor) int {
	n := 0
	for _, call := range exec.calls {
		if strings.Contains(call.query, strings.TrimSpace(strings.SplitN(strings.TrimSpace(sqlinline.QFinalizeBatch), "\n", 2)[0])) {
			n++
		}
	}
	return n
}

func TestFinalizeBatchSkipsWriteWhileJobsOpen(t *testing.T) {
	exec := &stubExecutor{
		rows: &statusRows{statuses: []domain.JobStatus{domain.JobStatusCompleted, domain.JobStatusProcessing}},
		row:  batchRow("batch-1", domain.BatchStatusGenerating),
	}
	s := NewBatchStore(exec)

	batch, err := s.FinalizeBatch(context.Background(), "batch-1")
	if err != nil {
		t.Fatalf("FinalizeBatch: %v", err)
	}
	if batch.Status != domain.BatchStatusGenerating {
		t.Fatalf("status = %s, want generating", batch.Status)
	}
	if n := finalizeCalls(exec); n != 0 {
		t.Fatalf("finalize statement ran %d times, want 0 while a job is open", n)
	}
}

func TestFinalizeBatchRunsWhenAllJobsTerminal(t *testing.T) {
	exec := &stubExecutor{
		rows: &statusRows{statuses: []domain.JobStatus{domain.JobStatusCompleted, domain.JobStatusFailed}},
		row:  batchRow("batch-1", domain.BatchStatusCompleted),
	}
	s := NewBatchStore(exec)

	batch, err := s.FinalizeBatch(context.Background(), "batch-1")
	if err != nil {
		t.Fatalf("FinalizeBatch: %v", err)
	}
	if batch.Status != domain.BatchStatusCompleted {
		t.Fatalf("status = %s, want completed", batch.Status)
	}
	if n := finalizeCalls(exec); n != 1 {
		t.Fatalf("finalize statement ran %d times, want 1", n)
	}
}
