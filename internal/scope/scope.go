// Package scope holds the explicit context of one open project: which tenant
// and project are active, the remote source, the clock and the autosave
// timing. Draft sessions and ordered stores are built from a Scope instead
// of reaching for global state, and closing the Scope tears down every live
// subscription it opened.
package scope

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/kopfkino/internal/common"
	"github.com/dmitrijs2005/kopfkino/internal/logging"
	"github.com/dmitrijs2005/kopfkino/internal/models"
	"github.com/dmitrijs2005/kopfkino/internal/remote"
	"github.com/dmitrijs2005/kopfkino/internal/timex"
)

const (
	DefaultAutosaveDelay = time.Second
	DefaultSavedDisplay  = 2 * time.Second
)

// Params configure a Scope. Zero durations, a nil Clock and a nil Logger
// fall back to defaults.
type Params struct {
	Tenant  string
	ScopeID string
	Source  remote.Source
	Clock   timex.Clock
	Logger  logging.Logger

	AutosaveDelay time.Duration
	SavedDisplay  time.Duration
}

type Scope struct {
	p Params

	mu     sync.Mutex
	feeds  map[string]*Feed
	closed bool
}

func New(p Params) *Scope {
	if p.Clock == nil {
		p.Clock = timex.Real
	}
	if p.Logger == nil {
		p.Logger = logging.Nop()
	}
	if p.AutosaveDelay <= 0 {
		p.AutosaveDelay = DefaultAutosaveDelay
	}
	if p.SavedDisplay <= 0 {
		p.SavedDisplay = DefaultSavedDisplay
	}
	p.Logger = p.Logger.With("tenant", p.Tenant, "scope", p.ScopeID)
	return &Scope{p: p, feeds: make(map[string]*Feed)}
}

func (s *Scope) Tenant() string               { return s.p.Tenant }
func (s *Scope) ID() string                   { return s.p.ScopeID }
func (s *Scope) Source() remote.Source        { return s.p.Source }
func (s *Scope) Clock() timex.Clock           { return s.p.Clock }
func (s *Scope) Logger() logging.Logger       { return s.p.Logger }
func (s *Scope) AutosaveDelay() time.Duration { return s.p.AutosaveDelay }
func (s *Scope) SavedDisplay() time.Duration  { return s.p.SavedDisplay }

// Feed returns the shared live feed of c within this scope, subscribing on
// first use.
func (s *Scope) Feed(ctx context.Context, c models.Collection) (*Feed, error) {
	if !c.Scoped {
		return nil, fmt.Errorf("feed %s: collection is not scoped", c.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, common.ErrClosed
	}
	if f, ok := s.feeds[c.Name]; ok {
		return f, nil
	}

	f := newFeed(c, s.p.Logger.With("collection", c.Name))
	q := remote.Query{Tenant: s.p.Tenant, Collection: c.Name, ScopeID: s.p.ScopeID}
	sub, err := s.p.Source.Subscribe(ctx, q, f.deliver)
	if err != nil {
		return nil, &common.SubscriptionError{Collection: c.Name, Err: err}
	}
	f.start(sub)
	s.feeds[c.Name] = f
	return f, nil
}

// Close ends every feed. Listeners receive nothing afterwards.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	feeds := s.feeds
	s.feeds = nil
	s.mu.Unlock()

	for _, f := range feeds {
		f.close()
	}
	s.p.Logger.Debug(context.Background(), "scope closed")
}
