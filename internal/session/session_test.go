package session

import (
	"testing"

	"github.com/leapstack-labs/leapdoc/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apply(t *testing.T, s State, events ...Event) State {
	t.Helper()
	for _, ev := range events {
		var err error
		s, err = Transition(s, ev)
		require.NoError(t, err, "%T", ev)
	}
	return s
}

func genFragment(row int, rev uint64) core.Fragment {
	return core.Fragment{Row: row, Layout: core.LayoutGenerated, Markup: "<p>x</p>", Status: core.FragmentOK, Revision: rev}
}

func TestTransition_TemplateFlow(t *testing.T) {
	s := apply(t, Initial(), LoadDataset{Rows: 3})
	assert.Equal(t, DataLoaded, s.Phase)

	s = apply(t, s, BeginLayout{}, ChooseLayout{Kind: core.LayoutTemplate, MappingRequired: true})
	assert.Equal(t, LayoutPending, s.Phase, "waits for mapping confirmation")
	assert.False(t, s.Ready())

	_, err := Transition(s, SelectRow{Row: 1})
	require.ErrorIs(t, err, core.ErrInvalidTransition)

	s = apply(t, s, ConfirmMapping{})
	assert.Equal(t, PreviewSingle, s.Phase)
	assert.True(t, s.MappingConfirmed)
	row, ok := s.Active()
	assert.True(t, ok)
	assert.Equal(t, 0, row)

	s = apply(t, s, ToggleGranularity{})
	assert.Equal(t, core.GranularityBulk, s.Granularity())
	assert.Equal(t, core.LayoutTemplate, s.Layout, "granularity toggles keep the layout")

	s = apply(t, s, SelectRow{Row: 2})
	assert.Equal(t, PreviewSingle, s.Phase)
	assert.Equal(t, 2, s.ActiveRow)

	s = apply(t, s, ClearLayout{})
	assert.Equal(t, DataLoaded, s.Phase)
	assert.Equal(t, 3, s.Rows, "data is kept")
	assert.Equal(t, core.LayoutNone, s.Layout)
	assert.False(t, s.MappingConfirmed)
}

func TestTransition_GeneratedNeedsNoMapping(t *testing.T) {
	s := apply(t, Initial(), LoadDataset{Rows: 2}, ChooseLayout{Kind: core.LayoutGenerated})
	assert.Equal(t, PreviewSingle, s.Phase)
	assert.True(t, s.Ready())

	s = apply(t, s, ShowBulk{})
	assert.Equal(t, PreviewBulk, s.Phase)
}

func TestTransition_LoadDiscardsEverything(t *testing.T) {
	s := apply(t, Initial(), LoadDataset{Rows: 2}, ChooseLayout{Kind: core.LayoutGenerated})
	s = apply(t, s,
		CacheFragment{Epoch: s.Epoch, Fragment: genFragment(0, 0)},
		SetIssues{Epoch: s.Epoch, Issues: []core.ValidationIssue{{Row: 0, Field: "Email", Message: "x"}}},
	)
	require.Equal(t, 1, s.CacheSize())
	epoch := s.Epoch

	s = apply(t, s, LoadDataset{Rows: 5})
	assert.Equal(t, DataLoaded, s.Phase)
	assert.Equal(t, 5, s.Rows)
	assert.Equal(t, core.LayoutNone, s.Layout)
	assert.Zero(t, s.CacheSize())
	assert.Empty(t, s.Issues())
	_, ok := s.Active()
	assert.False(t, ok)
	assert.Greater(t, s.Epoch, epoch)
}

func TestTransition_IllegalEventsLeaveStateUntouched(t *testing.T) {
	s := Initial()
	tests := []struct {
		name string
		s    State
		ev   Event
	}{
		{"clear without data", s, ClearData{}},
		{"layout without data", s, BeginLayout{}},
		{"confirm without layout", apply(t, s, LoadDataset{Rows: 1}), ConfirmMapping{}},
		{"bulk without layout", apply(t, s, LoadDataset{Rows: 1}), ShowBulk{}},
		{"toggle without preview", apply(t, s, LoadDataset{Rows: 1}), ToggleGranularity{}},
		{"clear layout without layout", apply(t, s, LoadDataset{Rows: 1}), ClearLayout{}},
		{"empty dataset", s, LoadDataset{Rows: 0}},
		{"unknown layout", apply(t, s, LoadDataset{Rows: 1}), ChooseLayout{Kind: "pdf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.s, tt.ev)
			require.ErrorIs(t, err, core.ErrInvalidTransition)
			assert.Equal(t, tt.s, got)
		})
	}
}

func TestTransition_SelectRowRange(t *testing.T) {
	s := apply(t, Initial(), LoadDataset{Rows: 2})
	_, err := Transition(s, SelectRow{Row: 2})
	assert.ErrorIs(t, err, core.ErrRowOutOfRange)

	s = apply(t, s, SelectRow{Row: 1})
	assert.Equal(t, PreviewSingle, s.Phase)
	assert.Equal(t, core.LayoutNone, s.Layout)
}

func TestTransition_CacheCopyOnWrite(t *testing.T) {
	s := apply(t, Initial(), LoadDataset{Rows: 3}, ChooseLayout{Kind: core.LayoutGenerated})
	before := s

	s = apply(t, s, CacheFragment{Epoch: s.Epoch, Fragment: genFragment(1, 4)})
	_, ok := before.Cached(1, 4)
	assert.False(t, ok, "earlier states are not mutated")

	f, ok := s.Cached(1, 4)
	require.True(t, ok)
	assert.Equal(t, 1, f.Row)
	_, ok = s.Cached(1, 5)
	assert.False(t, ok, "revision must match")

	edited := apply(t, s, EditCell{Row: 1})
	_, ok = edited.Cached(1, 4)
	assert.False(t, ok, "edit invalidates the row")
	_, ok = s.Cached(1, 4)
	assert.True(t, ok)
}

func TestTransition_StaleResults(t *testing.T) {
	s := apply(t, Initial(), LoadDataset{Rows: 3}, ChooseLayout{Kind: core.LayoutGenerated})
	old := s.Epoch

	s = apply(t, s, ClearLayout{}, ChooseLayout{Kind: core.LayoutGenerated})
	_, err := Transition(s, CacheFragment{Epoch: old, Fragment: genFragment(0, 0)})
	assert.ErrorIs(t, err, core.ErrStaleResult)
	_, err = Transition(s, SetIssues{Epoch: old})
	assert.ErrorIs(t, err, core.ErrStaleResult)
}

func TestTransition_CacheOnlyForGenerated(t *testing.T) {
	s := apply(t, Initial(), LoadDataset{Rows: 3}, ChooseLayout{Kind: core.LayoutTemplate, MappingRequired: true}, ConfirmMapping{})
	_, err := Transition(s, CacheFragment{Epoch: s.Epoch, Fragment: genFragment(0, 0)})
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestTransition_ChangingLayoutResets(t *testing.T) {
	s := apply(t, Initial(), LoadDataset{Rows: 3}, ChooseLayout{Kind: core.LayoutGenerated})
	s = apply(t, s, CacheFragment{Epoch: s.Epoch, Fragment: genFragment(0, 0)})

	s = apply(t, s, BeginLayout{})
	assert.Equal(t, LayoutPending, s.Phase)
	assert.Zero(t, s.CacheSize())
	assert.Equal(t, core.LayoutNone, s.Layout)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "preview_bulk", PreviewBulk.String())
	assert.Equal(t, "unknown", Phase(42).String())
}

func TestTransition_SetRowIssuesKeepsOtherRows(t *testing.T) {
	s := apply(t, Initial(), LoadDataset{Rows: 3}, ChooseLayout{Kind: core.LayoutGenerated})
	s = apply(t, s, SetIssues{Epoch: s.Epoch, Issues: []core.ValidationIssue{
		{Row: 0, Field: "Nome", Message: "curto"},
		{Row: 2, Field: "Email", Message: "inválido"},
	}})

	s = apply(t, s, SetRowIssues{Epoch: s.Epoch, Row: 1, Issues: []core.ValidationIssue{{Field: "Valor", Message: "negativo"}}})
	assert.Equal(t, []core.ValidationIssue{
		{Row: 0, Field: "Nome", Message: "curto"},
		{Row: 1, Field: "Valor", Message: "negativo"},
		{Row: 2, Field: "Email", Message: "inválido"},
	}, s.Issues())

	s = apply(t, s, SetRowIssues{Epoch: s.Epoch, Row: 2})
	assert.Equal(t, []core.ValidationIssue{
		{Row: 0, Field: "Nome", Message: "curto"},
		{Row: 1, Field: "Valor", Message: "negativo"},
	}, s.Issues())

	_, err := Transition(s, SetRowIssues{Epoch: s.Epoch, Row: 3})
	assert.ErrorIs(t, err, core.ErrRowOutOfRange)
	_, err = Transition(s, SetRowIssues{Epoch: s.Epoch - 1, Row: 0})
	assert.ErrorIs(t, err, core.ErrStaleResult)
}
