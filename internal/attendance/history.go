package attendance

import (
	"context"
	"sync"

	"github.com/meong5670/InfinitarLockin/internal/api"
)

// HistoryPhase is the discriminant of HistoryState.
type HistoryPhase int

const (
	HistoryLoading HistoryPhase = iota
	HistorySuccess
	HistoryError
)

func (p HistoryPhase) String() string {
	switch p {
	case HistoryLoading:
		return "loading"
	case HistorySuccess:
		return "success"
	default:
		return "error"
	}
}

// HistoryState holds the fetched attendance rows or the failure message.
type HistoryState struct {
	Phase   HistoryPhase
	Records []api.AttendanceRecord
	Message string
}

// HistoryFetcher is the backend slice the history loader depends on.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, employeeID, limit int) (*api.HistoryResponse, error)
}

// History loads the read-only attendance log. Records are immutable from the
// client's perspective; each fetch replaces the whole slice.
type History struct {
	backend HistoryFetcher

	mu    sync.Mutex
	state HistoryState
}

// NewHistory starts in Loading.
func NewHistory(backend HistoryFetcher) *History {
	return &History{backend: backend, state: HistoryState{Phase: HistoryLoading}}
}

// State returns the current snapshot.
func (h *History) State() HistoryState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Fetch loads the most recent rows for the employee. Re-invocable at any
// time; flips back to Loading while the call runs.
func (h *History) Fetch(ctx context.Context, employeeID, limit int) HistoryState {
	h.mu.Lock()
	h.state = HistoryState{Phase: HistoryLoading}
	h.mu.Unlock()

	var state HistoryState
	resp, err := h.backend.FetchHistory(ctx, employeeID, limit)
	if err != nil {
		state = HistoryState{Phase: HistoryError, Message: "Failed to load history: " + err.Error()}
	} else {
		state = HistoryState{Phase: HistorySuccess, Records: resp.History}
	}

	h.mu.Lock()
	h.state = state
	h.mu.Unlock()
	return state
}
