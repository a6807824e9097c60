// Package registry maps logical page identities to live pages.
package registry

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/hairizuan-noorazman/ui-replay/browser"
	"github.com/hairizuan-noorazman/ui-replay/ledger"
	"github.com/hairizuan-noorazman/ui-replay/logger"
)

// ErrPageNotFound is returned when no page is registered for an identity.
var ErrPageNotFound = errors.New("page not registered")

// AttachFunc subscribes to a newly registered page. It returns the page's
// ledger and a function that stops the subscription.
type AttachFunc func(uuid string, page browser.Page) (*ledger.Ledger, func())

// Entry is one registered page.
type Entry struct {
	UUID   string
	Page   browser.Page
	Ledger *ledger.Ledger
	detach func()
}

// Registry holds at most one live page per identity.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	byPage  map[string]string
	attach  AttachFunc
	logger  logger.Logger
}

// New creates an empty registry. attach may be nil.
func New(log logger.Logger, attach AttachFunc) *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		byPage:  make(map[string]string),
		attach:  attach,
		logger:  log,
	}
}

// Put registers page under uuid. When uuid is already taken and force is
// set, the previous page is closed and replaced. When force is not set the
// new page is closed instead and Put reports false.
func (r *Registry) Put(ctx context.Context, uuid string, page browser.Page, force bool) bool {
	r.mu.Lock()
	existing, ok := r.entries[uuid]
	if ok && existing.Page.ID() == page.ID() {
		r.mu.Unlock()
		return true
	}
	if ok && !force {
		r.mu.Unlock()
		r.logger.Debug(ctx, "Page identity already bound, closing duplicate", map[string]interface{}{
			"uuid":    uuid,
			"page_id": page.ID(),
		})
		if err := page.Close(ctx); err != nil {
			r.logger.Warn(ctx, "Failed to close duplicate page", map[string]interface{}{
				"uuid":  uuid,
				"error": err.Error(),
			})
		}
		return false
	}
	if ok {
		delete(r.entries, uuid)
		delete(r.byPage, existing.Page.ID())
	}
	entry := &Entry{UUID: uuid, Page: page}
	r.entries[uuid] = entry
	r.byPage[page.ID()] = uuid
	r.mu.Unlock()

	if ok {
		r.logger.Debug(ctx, "Replacing page for identity", map[string]interface{}{
			"uuid":     uuid,
			"previous": existing.Page.ID(),
			"page_id":  page.ID(),
		})
		r.teardown(ctx, existing, true)
	}

	if r.attach != nil {
		l, detach := r.attach(uuid, page)
		r.mu.Lock()
		entry.Ledger = l
		entry.detach = detach
		r.mu.Unlock()
	}
	return true
}

// Get returns the entry for uuid.
func (r *Registry) Get(uuid string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[uuid]
	return e, ok
}

// Page returns the live page for uuid.
func (r *Registry) Page(uuid string) (browser.Page, error) {
	e, ok := r.Get(uuid)
	if !ok {
		return nil, ErrPageNotFound
	}
	return e.Page, nil
}

// Ledger returns the network ledger for uuid, or nil.
func (r *Registry) Ledger(uuid string) *ledger.Ledger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[uuid]; ok {
		return e.Ledger
	}
	return nil
}

// UUIDOf returns the identity a page is registered under.
func (r *Registry) UUIDOf(page browser.Page) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uuid, ok := r.byPage[page.ID()]
	return uuid, ok
}

// UUIDs returns the registered identities in sorted order.
func (r *Registry) UUIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for uuid := range r.entries {
		out = append(out, uuid)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered pages.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Remove stops tracking uuid without closing its page.
func (r *Registry) Remove(ctx context.Context, uuid string) {
	if e := r.take(uuid); e != nil {
		r.teardown(ctx, e, false)
	}
}

// RemovePage stops tracking page without closing it.
func (r *Registry) RemovePage(ctx context.Context, page browser.Page) {
	r.mu.RLock()
	uuid, ok := r.byPage[page.ID()]
	r.mu.RUnlock()
	if ok {
		r.Remove(ctx, uuid)
	}
}

// Close closes the page registered under uuid and stops tracking it.
func (r *Registry) Close(ctx context.Context, uuid string) error {
	e := r.take(uuid)
	if e == nil {
		return ErrPageNotFound
	}
	return r.teardown(ctx, e, true)
}

// Clear stops tracking every page. Pages are closed only when closePages is set.
func (r *Registry) Clear(ctx context.Context, closePages bool) {
	r.mu.Lock()
	entries := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.entries = make(map[string]*Entry)
	r.byPage = make(map[string]string)
	r.mu.Unlock()

	for _, e := range entries {
		_ = r.teardown(ctx, e, closePages)
	}
}

func (r *Registry) take(uuid string) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[uuid]
	if !ok {
		return nil
	}
	delete(r.entries, uuid)
	delete(r.byPage, e.Page.ID())
	return e
}

func (r *Registry) teardown(ctx context.Context, e *Entry, closePage bool) error {
	r.mu.Lock()
	detach, l := e.detach, e.Ledger
	e.detach = nil
	r.mu.Unlock()

	if detach != nil {
		detach()
	}
	if l != nil {
		l.Reset()
	}
	if !closePage {
		return nil
	}
	if err := e.Page.Close(ctx); err != nil {
		r.logger.Warn(ctx, "Failed to close page", map[string]interface{}{
			"uuid":  e.UUID,
			"error": err.Error(),
		})
		return err
	}
	return nil
}
