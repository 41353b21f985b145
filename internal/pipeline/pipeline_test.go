package pipeline

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/leapstack-labs/leapdoc/internal/archive"
	"github.com/leapstack-labs/leapdoc/internal/dataset"
	"github.com/leapstack-labs/leapdoc/internal/layout"
	"github.com/leapstack-labs/leapdoc/internal/markup"
	"github.com/leapstack-labs/leapdoc/internal/testutil"
	"github.com/leapstack-labs/leapdoc/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type fakeStrategy struct {
	kind  core.LayoutKind
	fail  map[int]error
	mu    sync.Mutex
	calls []time.Time
}

func (s *fakeStrategy) Kind() core.LayoutKind { return s.kind }

func (s *fakeStrategy) Render(_ context.Context, row dataset.Row, _ layout.RenderContext) (core.Fragment, error) {
	s.mu.Lock()
	s.calls = append(s.calls, time.Now())
	s.mu.Unlock()

	if err := s.fail[row.Index]; err != nil {
		return layout.ErrorFragment(s.kind, row, err.Error(), err), err
	}
	return core.Fragment{
		Row:      row.Index,
		Layout:   s.kind,
		Markup:   "<p>" + markup.WrapText("Nome", row.Get("Nome")) + "</p>",
		Fields:   []string{"Nome"},
		Status:   core.FragmentOK,
		Revision: row.Revision,
	}, nil
}

func (s *fakeStrategy) Document(ctx context.Context, row dataset.Row, rc layout.RenderContext) (layout.Document, error) {
	if err := s.fail[row.Index]; err != nil {
		return layout.Document{}, err
	}
	return layout.Document{Ext: ".docx", Content: []byte(row.Get("Nome"))}, nil
}

func (s *fakeStrategy) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type memCache struct {
	frags map[int]core.Fragment
}

func (c *memCache) Get(row int, revision uint64) (core.Fragment, bool) {
	f, ok := c.frags[row]
	if !ok || f.Revision != revision {
		return core.Fragment{}, false
	}
	return f, true
}

func (c *memCache) Put(f core.Fragment) {
	if c.frags == nil {
		c.frags = make(map[int]core.Fragment)
	}
	c.frags[f.Row] = f
}

func fiveRows(t *testing.T) *dataset.Dataset {
	t.Helper()
	records := make([][]string, 5)
	for i := range records {
		records[i] = []string{"Pessoa " + strconv.Itoa(i+1), "p" + strconv.Itoa(i+1) + "@x.com"}
	}
	ds, err := dataset.New([]string{"Nome", "Email"}, records)
	require.NoError(t, err)
	return ds
}

func statuses(frags []core.Fragment) []core.FragmentStatus {
	out := make([]core.FragmentStatus, len(frags))
	for i, f := range frags {
		out[i] = f.Status
	}
	return out
}

func TestRenderAll_HaltOnThirdRow(t *testing.T) {
	store := newFakeStore()
	s := &fakeStrategy{kind: core.LayoutGenerated, fail: map[int]error{2: errBoom}}
	p, err := New(Config{Strategy: s, Rows: fiveRows(t), Spacing: -1, Store: store, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)

	var streamed []int
	res, err := p.RenderAll(context.Background(), func(f core.Fragment) { streamed = append(streamed, f.Row) })
	require.Error(t, err)

	var rowErr *core.RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, 2, rowErr.Row)
	assert.ErrorIs(t, err, errBoom)

	require.Len(t, res.Fragments, 5)
	assert.Equal(t, []core.FragmentStatus{
		core.FragmentOK, core.FragmentOK, core.FragmentError, core.FragmentSkipped, core.FragmentSkipped,
	}, statuses(res.Fragments))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, streamed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 3, s.callCount())

	run := store.runs[res.RunID]
	require.NotNil(t, run)
	assert.Equal(t, core.RunStatusFailed, run.Status)
	assert.Equal(t, []core.RowRunStatus{
		core.RowRunStatusSuccess, core.RowRunStatusSuccess, core.RowRunStatusFailed,
		core.RowRunStatusSkipped, core.RowRunStatusSkipped,
	}, store.rowStatuses(res.RunID))
}

func TestRenderAll_Continue(t *testing.T) {
	s := &fakeStrategy{kind: core.LayoutTemplate, fail: map[int]error{2: errBoom}}
	p, err := New(Config{Strategy: s, Rows: fiveRows(t), OnError: Continue})
	require.NoError(t, err)

	res, err := p.RenderAll(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, []core.FragmentStatus{
		core.FragmentOK, core.FragmentOK, core.FragmentError, core.FragmentOK, core.FragmentOK,
	}, statuses(res.Fragments))
}

func TestRenderAll_CredentialFailureHaltsEvenWhenContinuing(t *testing.T) {
	s := &fakeStrategy{kind: core.LayoutGenerated, fail: map[int]error{1: core.ErrServiceAuthOrQuota}}
	p, err := New(Config{Strategy: s, Rows: fiveRows(t), OnError: Continue, Spacing: -1})
	require.NoError(t, err)

	res, err := p.RenderAll(context.Background(), nil)
	require.ErrorIs(t, err, core.ErrServiceAuthOrQuota)
	assert.Equal(t, 2, s.callCount())
	assert.Equal(t, 3, res.Skipped)
}

func TestRenderAll_Success(t *testing.T) {
	store := newFakeStore()
	s := &fakeStrategy{kind: core.LayoutTemplate}
	p, err := New(Config{Strategy: s, Rows: fiveRows(t), Store: store})
	require.NoError(t, err)

	res, err := p.RenderAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, res.Fragments, 5)
	assert.Equal(t, core.RunStatusCompleted, store.runs[res.RunID].Status)
}

func TestRenderAll_Spacing(t *testing.T) {
	s := &fakeStrategy{kind: core.LayoutGenerated}
	spacing := 30 * time.Millisecond
	p, err := New(Config{Strategy: s, Rows: fiveRows(t), Spacing: spacing})
	require.NoError(t, err)

	_, err = p.RenderAll(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, s.calls, 5)
	for i := 1; i < len(s.calls); i++ {
		assert.GreaterOrEqual(t, s.calls[i].Sub(s.calls[i-1]), spacing)
	}
}

func TestRenderAll_TemplateNotThrottled(t *testing.T) {
	s := &fakeStrategy{kind: core.LayoutTemplate}
	p, err := New(Config{Strategy: s, Rows: fiveRows(t), Spacing: time.Hour})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_, _ = p.RenderAll(context.Background(), nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("template render was throttled")
	}
}

func TestRenderAll_EditsReflectedForPendingRows(t *testing.T) {
	ds := fiveRows(t)
	s := &fakeStrategy{kind: core.LayoutTemplate}
	p, err := New(Config{Strategy: s, Rows: ds})
	require.NoError(t, err)

	res, err := p.RenderAll(context.Background(), func(f core.Fragment) {
		if f.Row == 0 {
			_, _ = ds.SetCell(3, "Nome", "Editada")
			_, _ = ds.SetCell(0, "Nome", "Tarde demais")
		}
	})
	require.NoError(t, err)
	assert.Contains(t, res.Fragments[3].Markup, "Editada")
	assert.NotContains(t, res.Fragments[0].Markup, "Tarde demais")
}

func TestRenderAll_Cancelled(t *testing.T) {
	store := newFakeStore()
	s := &fakeStrategy{kind: core.LayoutGenerated}
	p, err := New(Config{Strategy: s, Rows: fiveRows(t), Spacing: time.Hour, Store: store})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	res, err := p.RenderAll(ctx, func(f core.Fragment) {
		if f.Row == 0 {
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, res.Fragments, 5)
	assert.Equal(t, core.FragmentOK, res.Fragments[0].Status)
	for _, f := range res.Fragments[1:] {
		assert.Equal(t, core.FragmentSkipped, f.Status)
	}
	assert.Equal(t, core.RunStatusCancelled, store.runs[res.RunID].Status)
}

func TestRenderOne_CacheCoherence(t *testing.T) {
	ds := fiveRows(t)
	s := &fakeStrategy{kind: core.LayoutGenerated}
	cache := &memCache{}
	p, err := New(Config{Strategy: s, Rows: ds, Cache: cache, Spacing: -1})
	require.NoError(t, err)

	first, err := p.RenderOne(context.Background(), 1)
	require.NoError(t, err)
	again, err := p.RenderOne(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, first.Markup, again.Markup)
	assert.Equal(t, 1, s.callCount(), "second preview served from cache")

	changed, err := ds.SetCell(1, "Nome", "Novo Nome")
	require.NoError(t, err)
	require.True(t, changed)

	fresh, err := p.RenderOne(context.Background(), 1)
	require.NoError(t, err)
	assert.Contains(t, fresh.Markup, "Novo Nome")
	assert.Equal(t, 2, s.callCount())

	_, err = p.RenderOne(context.Background(), 9)
	assert.ErrorIs(t, err, core.ErrRowOutOfRange)
}

func TestRenderOne_FailuresNotCached(t *testing.T) {
	s := &fakeStrategy{kind: core.LayoutGenerated, fail: map[int]error{0: errBoom}}
	cache := &memCache{}
	p, err := New(Config{Strategy: s, Rows: fiveRows(t), Cache: cache, Spacing: -1})
	require.NoError(t, err)

	frag, err := p.RenderOne(context.Background(), 0)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, core.FragmentError, frag.Status)
	assert.Empty(t, cache.frags)
}

func TestExport(t *testing.T) {
	ds, err := dataset.New([]string{"Nome"}, [][]string{{"Ana Lúcia"}, {""}, {"Ana Lúcia"}})
	require.NoError(t, err)

	t.Run("template", func(t *testing.T) {
		p, err := New(Config{Strategy: &fakeStrategy{kind: core.LayoutTemplate}, Rows: ds})
		require.NoError(t, err)
		res, err := p.Export(context.Background(), archive.NewNamer(""), "Nome")
		require.NoError(t, err)

		names := make([]string, len(res.Entries))
		for i, e := range res.Entries {
			names[i] = e.Name
		}
		assert.Equal(t, []string{"ana-lucia.docx", "documento_2.docx", "ana-lucia-2.docx"}, names)
	})

	t.Run("generated reuses cache", func(t *testing.T) {
		s := &fakeStrategy{kind: core.LayoutGenerated}
		cache := &memCache{}
		p, err := New(Config{Strategy: s, Rows: ds, Cache: cache, Spacing: -1})
		require.NoError(t, err)
		_, err = p.RenderOne(context.Background(), 0)
		require.NoError(t, err)

		res, err := p.Export(context.Background(), nil, "")
		require.NoError(t, err)
		require.Len(t, res.Entries, 3)
		assert.Equal(t, "documento_1.html", res.Entries[0].Name)
		assert.Contains(t, string(res.Entries[0].Content), "<title>Documento 1</title>")
		assert.Equal(t, 3, s.callCount())
	})

	t.Run("halt aborts", func(t *testing.T) {
		s := &fakeStrategy{kind: core.LayoutTemplate, fail: map[int]error{1: errBoom}}
		p, err := New(Config{Strategy: s, Rows: ds})
		require.NoError(t, err)
		res, err := p.Export(context.Background(), nil, "Nome")
		require.ErrorIs(t, err, errBoom)
		assert.Empty(t, res.Entries)
		assert.Equal(t, []int{1}, res.Failed)
	})

	t.Run("continue skips failed rows", func(t *testing.T) {
		s := &fakeStrategy{kind: core.LayoutTemplate, fail: map[int]error{1: errBoom}}
		p, err := New(Config{Strategy: s, Rows: ds, OnError: Continue})
		require.NoError(t, err)
		res, err := p.Export(context.Background(), nil, "Nome")
		require.Error(t, err)
		assert.Len(t, res.Entries, 2)
	})
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Rows: fiveRows(t)})
	assert.Error(t, err)
	_, err = New(Config{Strategy: &fakeStrategy{}})
	assert.Error(t, err)
}
