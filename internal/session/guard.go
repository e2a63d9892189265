package session

import (
	"errors"
	"fmt"
	"sync"
)

// ErrBusy is returned when a project already has a run in flight.
var ErrBusy = errors.New("a run is already in progress for this project")

// Guard admits at most one run per project identity. The zero value is ready
// to use.
type Guard struct {
	mu     sync.Mutex
	active map[string]string
}

// Acquire claims project for runID. The returned release func is safe to
// call more than once.
func (g *Guard) Acquire(project, runID string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active == nil {
		g.active = make(map[string]string)
	}
	if owner, ok := g.active[project]; ok {
		return nil, fmt.Errorf("%w: %s (run %s)", ErrBusy, project, owner)
	}
	g.active[project] = runID

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			if g.active[project] == runID {
				delete(g.active, project)
			}
		})
	}, nil
}

// Active returns the run currently holding project, if any.
func (g *Guard) Active(project string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	runID, ok := g.active[project]
	return runID, ok
}
