package session

import (
	"context"
	"sync"

	"github.com/meong5670/InfinitarLockin/internal/api"
)

// AuthPhase is the discriminant of AuthState.
type AuthPhase int

const (
	Loading AuthPhase = iota
	Authenticated
	Unauthenticated
	AuthError
)

func (p AuthPhase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "error"
	}
}

// AuthState is the resolver's tagged-union state. Employee is set only while
// Authenticated; Message only while AuthError.
type AuthState struct {
	Phase    AuthPhase
	Employee *api.Employee
	Message  string
}

// Checker is the single backend call the resolver depends on.
type Checker interface {
	CheckIdentity(ctx context.Context, deviceID string) (*api.CheckResponse, error)
}

// Resolver maps the device identity to a registration state. It never retries
// by itself: a retry is a caller re-invocation with isRetry=true.
type Resolver struct {
	backend  Checker
	deviceID string

	mu    sync.RWMutex
	state AuthState
	subs  []chan AuthState
}

// NewResolver starts in Loading, matching the cold-start contract.
func NewResolver(backend Checker, deviceID string) *Resolver {
	return &Resolver{
		backend:  backend,
		deviceID: deviceID,
		state:    AuthState{Phase: Loading},
	}
}

// State returns the current snapshot. The Employee pointer is replaced
// wholesale on every successful fetch, never mutated in place, so holding a
// returned snapshot across a concurrent refresh is safe.
func (r *Resolver) State() AuthState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Subscribe returns a channel carrying state changes. The channel holds only
// the latest state: a slow reader sees the newest value, not every step.
func (r *Resolver) Subscribe() <-chan AuthState {
	ch := make(chan AuthState, 1)
	r.mu.Lock()
	r.subs = append(r.subs, ch)
	r.mu.Unlock()
	return ch
}

// Resolve runs one identity check. While already Authenticated a routine
// background refresh keeps the current state on screen instead of flashing
// Loading; an explicit retry always shows Loading.
func (r *Resolver) Resolve(ctx context.Context, isRetry bool) AuthState {
	if r.State().Phase != Authenticated || isRetry {
		r.publish(AuthState{Phase: Loading})
	}

	resp, err := r.backend.CheckIdentity(ctx, r.deviceID)
	switch {
	case err != nil:
		r.publish(AuthState{Phase: AuthError, Message: "Network error: " + err.Error()})
	case resp.Registered && resp.Employee != nil:
		emp := *resp.Employee
		r.publish(AuthState{Phase: Authenticated, Employee: &emp})
	default:
		r.publish(AuthState{Phase: Unauthenticated})
	}
	return r.State()
}

func (r *Resolver) publish(s AuthState) {
	r.mu.Lock()
	r.state = s
	subs := r.subs
	r.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- s:
		default:
			// Drop the stale value so the latest one lands.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}
