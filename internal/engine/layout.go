package engine

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/leapdoc/internal/container"
	"github.com/leapstack-labs/leapdoc/internal/layout"
	"github.com/leapstack-labs/leapdoc/internal/mapping"
	"github.com/leapstack-labs/leapdoc/internal/placeholder"
	"github.com/leapstack-labs/leapdoc/internal/session"
	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// UseTemplate selects a template layout. The template's placeholders are
// extracted and a mapping is suggested; the layout stays pending until
// ConfirmMapping. The returned draft is a copy.
func (e *Engine) UseTemplate(ctx context.Context, c container.Container) (*mapping.Mapping, error) {
	if c == nil {
		return nil, core.ErrTemplateUnreadable
	}
	fields, err := placeholder.ExtractContainer(c)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.ds == nil {
		e.mu.Unlock()
		return nil, ErrNoData
	}
	if err := e.applyLocked(session.BeginLayout{}); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if err := e.applyLocked(session.ChooseLayout{Kind: core.LayoutTemplate, MappingRequired: true}); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.resetLayoutLocked()
	e.tmpl = c
	e.fields = fields
	e.draft = mapping.New(fields)
	e.mu.Unlock()

	e.logger.Info("template selected", "name", c.Name(), "fields", len(fields))
	return e.SuggestMapping(ctx)
}

// SuggestMapping asks the suggester for a fresh draft mapping.
func (e *Engine) SuggestMapping(ctx context.Context) (*mapping.Mapping, error) {
	e.mu.Lock()
	if err := e.pendingTemplateLocked(); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	t := e.ticketLocked(session.NoRow)
	fields := append([]string(nil), e.fields...)
	columns := e.ds.Columns()
	e.mu.Unlock()

	suggested := e.resolver.Suggest(ctx, fields, columns)

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.currentLocked(t) {
		return nil, fmt.Errorf("%w: mapping suggestion", core.ErrStaleResult)
	}
	e.draft = suggested
	return suggested.Clone(), nil
}

// SetMapping maps field to column in the draft. An empty column unmaps it.
func (e *Engine) SetMapping(field, column string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.pendingTemplateLocked(); err != nil {
		return err
	}
	if column != "" && !e.ds.HasColumn(column) {
		return fmt.Errorf("%w: %q", core.ErrUnknownColumn, column)
	}
	return e.draft.Set(field, column)
}

// UseMapping replaces the draft with the entries of m that name known
// template fields, for example a mapping loaded from a file.
func (e *Engine) UseMapping(m *mapping.Mapping) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.pendingTemplateLocked(); err != nil {
		return err
	}
	draft := mapping.New(e.fields)
	for _, f := range e.fields {
		if col, ok := m.Column(f); ok && e.ds.HasColumn(col) {
			_ = draft.Set(f, col)
		}
	}
	e.draft = draft
	return nil
}

// ConfirmMapping confirms the draft under the configured policy and starts
// previewing row 1.
func (e *Engine) ConfirmMapping() (*mapping.Mapping, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.pendingTemplateLocked(); err != nil {
		return nil, err
	}

	confirmed, err := e.resolver.Confirm(e.draft, e.ds.Columns(), e.policy)
	if err != nil {
		return nil, err
	}
	strategy, err := layout.NewTemplate(e.tmpl, confirmed, e.logger)
	if err != nil {
		return nil, err
	}
	if err := e.applyLocked(session.ConfirmMapping{}); err != nil {
		return nil, err
	}
	e.draft = confirmed
	e.strategy = strategy
	e.rebuildLocked()
	return confirmed.Clone(), nil
}

// UseGenerated selects the generated layout. Empty instructions keep the
// current ones.
func (e *Engine) UseGenerated(instructions string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ds == nil {
		return ErrNoData
	}
	if err := e.applyLocked(session.BeginLayout{}); err != nil {
		return err
	}
	if err := e.applyLocked(session.ChooseLayout{Kind: core.LayoutGenerated}); err != nil {
		return err
	}
	e.resetLayoutLocked()
	if instructions != "" {
		e.rc.Instructions = instructions
	}
	e.draft = mapping.Identity(e.ds.Columns())
	e.strategy = layout.NewGenerated(e.gen, e.logger)
	e.rebuildLocked()
	e.logger.Info("generated layout selected")
	return nil
}

// ClearLayout drops the layout and keeps the data.
func (e *Engine) ClearLayout() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.applyLocked(session.ClearLayout{}); err != nil {
		return err
	}
	e.resetLayoutLocked()
	return nil
}

// SelectRow previews a single row.
func (e *Engine) SelectRow(row int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyLocked(session.SelectRow{Row: row})
}

// ShowBulk previews every row.
func (e *Engine) ShowBulk() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyLocked(session.ShowBulk{})
}

// ToggleGranularity switches between single and bulk preview.
func (e *Engine) ToggleGranularity() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyLocked(session.ToggleGranularity{})
}

func (e *Engine) pendingTemplateLocked() error {
	if e.ds == nil {
		return ErrNoData
	}
	if e.state.Layout != core.LayoutTemplate || e.tmpl == nil || e.draft == nil {
		return fmt.Errorf("%w: no template layout selected", core.ErrInvalidTransition)
	}
	if e.state.MappingConfirmed {
		return fmt.Errorf("%w: mapping already confirmed", core.ErrInvalidTransition)
	}
	return nil
}
