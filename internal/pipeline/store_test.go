package pipeline

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// fakeStore is an in-memory core.Store.
type fakeStore struct {
	mu      sync.Mutex
	seq     int
	runs    map[string]*core.Run
	rowRuns map[string]*core.RowRun
	issues  map[string][]core.ValidationIssue
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:    make(map[string]*core.Run),
		rowRuns: make(map[string]*core.RowRun),
		issues:  make(map[string][]core.ValidationIssue),
	}
}

func (s *fakeStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *fakeStore) Open(string) error { return nil }
func (s *fakeStore) Close() error      { return nil }
func (s *fakeStore) InitSchema() error { return nil }

func (s *fakeStore) CreateRun(kind core.RunKind, layout core.LayoutKind, rows int) (*core.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run := &core.Run{ID: s.nextID("run"), Kind: kind, Layout: layout, Rows: rows, Status: core.RunStatusRunning, StartedAt: time.Now()}
	s.runs[run.ID] = run
	return run, nil
}

func (s *fakeStore) GetRun(id string) (*core.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id], nil
}

func (s *fakeStore) CompleteRun(id string, status core.RunStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("run %s not found", id)
	}
	now := time.Now()
	run.Status, run.Error, run.CompletedAt = status, errMsg, &now
	return nil
}

func (s *fakeStore) GetLatestRun(kind core.RunKind) (*core.Run, error) {
	runs, _ := s.ListRuns(0)
	for _, r := range runs {
		if r.Kind == kind {
			return r, nil
		}
	}
	return nil, nil //nolint:nilnil // no run yet
}

func (s *fakeStore) ListRuns(limit int) ([]*core.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.Run
	for _, r := range s.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) RecordRowRun(rr *core.RowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rr.ID = s.nextID("row")
	rr.StartedAt = time.Now()
	cp := *rr
	s.rowRuns[rr.ID] = &cp
	return nil
}

func (s *fakeStore) UpdateRowRun(id string, status core.RowRunStatus, errMsg string, durationMS int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rr, ok := s.rowRuns[id]
	if !ok {
		return fmt.Errorf("row run %s not found", id)
	}
	rr.Status, rr.Error, rr.DurationMS = status, errMsg, durationMS
	return nil
}

func (s *fakeStore) GetRowRunsForRun(runID string) ([]*core.RowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.RowRun
	for _, rr := range s.rowRuns {
		if rr.RunID == runID {
			out = append(out, rr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Row < out[j].Row })
	return out, nil
}

func (s *fakeStore) SaveIssues(runID string, issues []core.ValidationIssue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues[runID] = append(s.issues[runID], issues...)
	return nil
}

func (s *fakeStore) GetIssuesForRun(runID string) ([]core.ValidationIssue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issues[runID], nil
}

func (s *fakeStore) rowStatuses(runID string) []core.RowRunStatus {
	rrs, _ := s.GetRowRunsForRun(runID)
	out := make([]core.RowRunStatus, len(rrs))
	for i, rr := range rrs {
		out[i] = rr.Status
	}
	return out
}

var _ core.Store = (*fakeStore)(nil)
