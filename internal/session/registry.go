package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Factory は訪問ごとのControllerを生成する。
type Factory func(secret string) *Controller

// Registry は訪問IDからControllerを引く。
type Registry struct {
	factory  Factory
	observer Observer

	mu     sync.Mutex
	visits map[string]*Controller
}

// NewRegistry はRegistryを生成する。
func NewRegistry(factory Factory, observer Observer) *Registry {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Registry{
		factory:  factory,
		observer: observer,
		visits:   make(map[string]*Controller),
	}
}

// Open は訪問IDに対応するControllerを返す。
// 未知のIDの場合は新しい訪問IDでControllerを作成し、secretを引き継いでCheckAuthを1回実行する。
func (r *Registry) Open(ctx context.Context, visitID, secret string) (string, *Controller, bool) {
	r.mu.Lock()
	if c, ok := r.visits[visitID]; ok && visitID != "" {
		r.mu.Unlock()
		return visitID, c, false
	}
	id := uuid.New().String()
	c := r.factory(secret)
	r.visits[id] = c
	n := len(r.visits)
	r.mu.Unlock()

	r.observer.SetActiveVisits(n)
	_ = c.CheckAuth(ctx)
	return id, c, true
}

// Get は訪問IDに対応するControllerを返す。
func (r *Registry) Get(visitID string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.visits[visitID]
	return c, ok
}

// Remove は訪問を破棄する。
func (r *Registry) Remove(visitID string) {
	r.mu.Lock()
	c, ok := r.visits[visitID]
	delete(r.visits, visitID)
	n := len(r.visits)
	r.mu.Unlock()

	if ok {
		c.Close()
		r.observer.SetActiveVisits(n)
	}
}

// Len は保持している訪問の数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.visits)
}

// Sweep はidle以上操作されていない訪問を破棄し、破棄した件数を返す。
func (r *Registry) Sweep(idle time.Duration, now time.Time) int {
	r.mu.Lock()
	var stale []*Controller
	for id, c := range r.visits {
		if now.Sub(c.LastActive()) >= idle {
			stale = append(stale, c)
			delete(r.visits, id)
		}
	}
	n := len(r.visits)
	r.mu.Unlock()

	for _, c := range stale {
		c.Close()
	}
	if len(stale) > 0 {
		r.observer.SetActiveVisits(n)
	}
	return len(stale)
}

// CloseAll はすべての訪問を破棄する。シャットダウン時に使う。
func (r *Registry) CloseAll() {
	r.mu.Lock()
	visits := r.visits
	r.visits = make(map[string]*Controller)
	r.mu.Unlock()

	for _, c := range visits {
		c.Close()
	}
	r.observer.SetActiveVisits(0)
}
