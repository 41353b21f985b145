// Package engine owns one working set (a dataset, the preview session, the
// field mapping and the active layout strategy) and exposes every user
// operation on it. The CLI, the interactive shell and the preview server all
// drive an Engine.
//
// All engine state is guarded by a single mutex. Calls to external services
// run outside the lock under a Ticket; their results are applied only if
// the ticket is still current.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/leapstack-labs/leapdoc/internal/container"
	"github.com/leapstack-labs/leapdoc/internal/dataset"
	"github.com/leapstack-labs/leapdoc/internal/genai"
	"github.com/leapstack-labs/leapdoc/internal/layout"
	"github.com/leapstack-labs/leapdoc/internal/mapping"
	"github.com/leapstack-labs/leapdoc/internal/overlay"
	"github.com/leapstack-labs/leapdoc/internal/pipeline"
	"github.com/leapstack-labs/leapdoc/internal/session"
	"github.com/leapstack-labs/leapdoc/internal/validation"
	"github.com/leapstack-labs/leapdoc/pkg/core"
)

// ErrNoData is returned by operations that need a loaded dataset.
var ErrNoData = errors.New("no dataset loaded")

// Config holds engine configuration.
type Config struct {
	// Generator is the generation service, usually a *credential.Holder.
	// Optional: without it generated layouts and service features fail
	// with core.ErrNoCredential.
	Generator genai.Generator
	// Suggester proposes mappings. Defaults to the service suggester when a
	// Generator is set, otherwise to the offline heuristic.
	Suggester mapping.Suggester
	Policy    mapping.Policy
	// Validator checks rows. Defaults to the service validator.
	Validator   validation.Validator
	Concurrency int
	// Store records bulk runs. Optional.
	Store        core.Store
	Spacing      time.Duration
	OnError      pipeline.ErrorPolicy
	Instructions string
	// NameColumn names exported documents.
	NameColumn string
	Logger     *slog.Logger
}

// Engine is the document generation controller.
type Engine struct {
	mu sync.Mutex

	gen       genai.Generator
	resolver  *mapping.Resolver
	policy    mapping.Policy
	validator validation.Validator
	store     core.Store
	cfg       Config
	logger    *slog.Logger

	ds       *dataset.Dataset
	state    session.State
	tmpl     container.Container
	fields   []string
	draft    *mapping.Mapping
	strategy layout.Strategy
	pipe     *pipeline.Pipeline
	rc       layout.RenderContext

	// fragments holds the last fragment rendered for each row under the
	// current epoch, for the overlay.
	fragments map[int]core.Fragment
	overlay   *overlay.Overlay
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	policy := cfg.Policy
	if policy == "" {
		policy = mapping.PolicyStrict
	}
	if _, err := mapping.ParsePolicy(string(policy)); err != nil {
		return nil, err
	}

	suggester := cfg.Suggester
	if suggester == nil {
		if cfg.Generator != nil {
			suggester = mapping.ServiceSuggester{Generator: cfg.Generator}
		} else {
			suggester = mapping.HeuristicSuggester{}
		}
	}
	validator := cfg.Validator
	if validator == nil {
		validator = validation.ServiceValidator{Generator: cfg.Generator}
	}

	logger.Debug("initializing engine", "policy", string(policy), "has_generator", cfg.Generator != nil)

	return &Engine{
		gen:       cfg.Generator,
		resolver:  mapping.NewResolver(suggester, logger),
		policy:    policy,
		validator: validator,
		store:     cfg.Store,
		cfg:       cfg,
		logger:    logger,
		state:     session.Initial(),
		rc:        layout.RenderContext{Instructions: cfg.Instructions},
		fragments: make(map[int]core.Fragment),
		overlay:   overlay.New(logger),
	}, nil
}

// State returns a snapshot of the preview session.
func (e *Engine) State() session.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Dataset returns the loaded dataset, or nil.
func (e *Engine) Dataset() *dataset.Dataset {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ds
}

// Columns returns the dataset columns, or nil when no data is loaded.
func (e *Engine) Columns() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ds == nil {
		return nil
	}
	return e.ds.Columns()
}

// Fields returns the placeholder tokens of the active template.
func (e *Engine) Fields() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.fields...)
}

// Mapping returns the current mapping: the draft while the layout is
// pending, the confirmed mapping afterwards. Callers get a copy.
func (e *Engine) Mapping() *mapping.Mapping {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.draft == nil {
		return nil
	}
	return e.draft.Clone()
}

// Template returns the active template container, or nil.
func (e *Engine) Template() container.Container {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tmpl
}

// Store returns the run history store, which may be nil.
func (e *Engine) Store() core.Store {
	return e.store
}

// Generator returns the configured generation service, which may be nil.
func (e *Engine) Generator() genai.Generator {
	return e.gen
}

// Instructions returns the instructions used by generated layouts.
func (e *Engine) Instructions() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rc.Instructions
}

// SetInstructions changes the generated layout instructions. Cached
// fragments are kept; they are regenerated only after an edit or a layout
// change.
func (e *Engine) SetInstructions(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rc.Instructions = s
	e.rebuildLocked()
}

// apply runs a session transition and logs it.
func (e *Engine) applyLocked(ev session.Event) error {
	next, err := session.Transition(e.state, ev)
	if err != nil {
		return err
	}
	if next.Epoch != e.state.Epoch {
		e.fragments = make(map[int]core.Fragment)
		e.overlay.Reset()
	}
	e.logger.Debug("session transition", "event", fmt.Sprintf("%T", ev), "from", e.state.Phase.String(), "to", next.Phase.String())
	e.state = next
	return nil
}

// rebuildLocked recreates the pipeline for the current strategy and epoch.
func (e *Engine) rebuildLocked() {
	if e.strategy == nil || e.ds == nil {
		e.pipe = nil
		return
	}
	p, err := pipeline.New(pipeline.Config{
		Strategy:      e.strategy,
		Rows:          e.ds,
		Cache:         &sessionCache{e: e, epoch: e.state.Epoch},
		Store:         e.store,
		RenderContext: e.rc,
		Spacing:       e.cfg.Spacing,
		OnError:       e.cfg.OnError,
		Logger:        e.logger,
	})
	if err != nil {
		e.logger.Error("failed to build pipeline", "error", err)
		e.pipe = nil
		return
	}
	e.pipe = p
}

// resetLayoutLocked drops everything tied to the current layout.
func (e *Engine) resetLayoutLocked() {
	e.tmpl = nil
	e.fields = nil
	e.draft = nil
	e.strategy = nil
	e.pipe = nil
}

// sortedFragments returns the stored fragments in row order.
func (e *Engine) sortedFragmentsLocked() []core.Fragment {
	out := make([]core.Fragment, 0, len(e.fragments))
	for _, f := range e.fragments {
		out = append(out, f)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Row < out[b].Row })
	return out
}

// sessionCache serves generated fragments from the session state. Puts are
// applied as CacheFragment events under the epoch the pipeline was built
// for, so results from a superseded layout are dropped.
type sessionCache struct {
	e     *Engine
	epoch uint64
}

func (c *sessionCache) Get(row int, revision uint64) (core.Fragment, bool) {
	c.e.mu.Lock()
	defer c.e.mu.Unlock()
	if c.e.state.Epoch != c.epoch {
		return core.Fragment{}, false
	}
	return c.e.state.Cached(row, revision)
}

func (c *sessionCache) Put(f core.Fragment) {
	c.e.mu.Lock()
	defer c.e.mu.Unlock()
	if err := c.e.applyLocked(session.CacheFragment{Epoch: c.epoch, Fragment: f}); err != nil {
		c.e.logger.Debug("fragment not cached", "row", f.Row, "error", err)
	}
}
