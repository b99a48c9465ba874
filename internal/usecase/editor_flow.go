package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pricechecker/admin/internal/domain"
)

// FlowState names a state of the view/edit flow.
type FlowState string

const (
	StateLoading     FlowState = "loading"
	StateLoaded      FlowState = "loaded"
	StateEditing     FlowState = "editing"
	StateSaving      FlowState = "saving"
	StateSaved       FlowState = "saved"
	StateSaveFailed  FlowState = "save_failed"
	StateUnavailable FlowState = "unavailable"
)

// EditorFlow is the view/edit state machine for one operator session:
// Loading → Loaded → Editing → Saving → Saved | SaveFailed, with Unavailable
// as the terminal state when the initial fetch fails.
//
// The flow holds the pristine loaded catalog (display stats are always derived
// from it), the edited buffer, the active search query, and the version token
// captured at load time. Edits arrive as the edited visible row set and are
// reconciled into the full buffer, so rows hidden by an active filter are
// never lost on save.
type EditorFlow struct {
	client domain.ContentClient

	mutex   sync.Mutex
	state   FlowState
	loaded  *domain.Catalog
	edited  *domain.Catalog
	sha     string
	query   string
	lastErr error
}

// NewEditorFlow creates a flow in the Loading state. Call Load to enter it.
func NewEditorFlow(client domain.ContentClient) *EditorFlow {
	return &EditorFlow{
		client: client,
		state:  StateLoading,
	}
}

// Load fetches the catalog fresh from the remote store, discarding any prior
// edits. On failure the flow lands in Unavailable and editing is disabled.
func (f *EditorFlow) Load(ctx context.Context) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	catalog, sha, err := f.client.Fetch(ctx)
	if err != nil {
		f.state = StateUnavailable
		f.lastErr = err
		f.loaded = nil
		f.edited = nil
		f.sha = ""
		return err
	}

	f.state = StateLoaded
	f.loaded = catalog
	f.edited = catalog.Clone()
	f.sha = sha
	f.query = ""
	f.lastErr = nil
	return nil
}

// State returns the flow's current state.
func (f *EditorFlow) State() FlowState {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.state
}

// LastError returns the error behind an Unavailable or SaveFailed state.
func (f *EditorFlow) LastError() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.lastErr
}

// SetQuery updates the active search query.
func (f *EditorFlow) SetQuery(query string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.query = query
}

// Query returns the active search query.
func (f *EditorFlow) Query() string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.query
}

// Columns returns the catalog's column order, nil when nothing is loaded.
func (f *EditorFlow) Columns() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.edited == nil {
		return nil
	}
	return f.edited.Columns
}

// Visible returns the edited rows matching the active query, in order.
func (f *EditorFlow) Visible() []domain.Row {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.edited == nil {
		return nil
	}
	return f.edited.Filter(f.query)
}

// TotalRows returns the size of the full edited buffer, filter ignored.
func (f *EditorFlow) TotalRows() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.edited == nil {
		return 0
	}
	return len(f.edited.Rows)
}

// SHA returns the version token the next save will present.
func (f *EditorFlow) SHA() string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.sha
}

// Stats derives display metrics from the pristine loaded catalog, never the
// filtered or edited view.
func (f *EditorFlow) Stats() domain.Stats {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.loaded == nil {
		return domain.Stats{}
	}
	return f.loaded.ComputeStats()
}

// ApplyEdits replaces the visible (filtered) rows with the operator's edited
// versions, reconciling them into the full buffer:
//   - positions matched by the active query are replaced pairwise,
//   - extra edited rows beyond the visible count are appended to the catalog,
//   - visible rows past the end of the edited set are deleted.
//
// Rows hidden by the filter are untouched.
func (f *EditorFlow) ApplyEdits(visible []domain.Row) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	switch f.state {
	case StateLoaded, StateEditing, StateSaved, StateSaveFailed:
		// editable states
	default:
		return fmt.Errorf("%w: cannot edit while %s", domain.ErrFlowState, f.state)
	}

	indices := f.edited.FilterIndices(f.query)

	n := len(visible)
	if n > len(indices) {
		n = len(indices)
	}
	for i := 0; i < n; i++ {
		f.edited.Rows[indices[i]] = visible[i]
	}

	// Operator added rows in the grid: they belong to the full set.
	for _, row := range visible[n:] {
		f.edited.Rows = append(f.edited.Rows, row)
	}

	// Operator deleted visible rows: remove the unmatched tail, back to front
	// so earlier indices stay valid.
	for i := len(indices) - 1; i >= len(visible); i-- {
		idx := indices[i]
		f.edited.Rows = append(f.edited.Rows[:idx], f.edited.Rows[idx+1:]...)
	}

	f.state = StateEditing
	return nil
}

// Save writes the full edited buffer using the version token captured at load
// time. An empty message gets the default commit message. On success the flow
// adopts the new token so further saves keep working. On a conflict the flow
// re-fetches the remote file to refresh its token — keeping the edited buffer —
// and stays open for retry.
func (f *EditorFlow) Save(ctx context.Context, message string) (string, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	switch f.state {
	case StateLoaded, StateEditing, StateSaved, StateSaveFailed:
		// saveable states
	default:
		return "", fmt.Errorf("%w: cannot save while %s", domain.ErrFlowState, f.state)
	}

	if message == "" {
		message = fmt.Sprintf("Updated prices - %s", time.Now().Format("2006-01-02 15:04"))
	}

	f.state = StateSaving
	newSHA, err := f.client.Write(ctx, f.edited, f.sha, message)
	if err != nil {
		f.state = StateSaveFailed
		f.lastErr = err

		// Stale token: refresh it now so the operator's retry presents a
		// current one. The edited buffer is kept; nothing is merged.
		if isConflict(err) {
			if _, freshSHA, ferr := f.client.Fetch(ctx); ferr == nil {
				f.sha = freshSHA
			}
		}
		return "", err
	}

	f.state = StateSaved
	f.sha = newSHA
	f.loaded = f.edited.Clone()
	f.lastErr = nil
	return newSHA, nil
}

func isConflict(err error) bool {
	return errors.Is(err, domain.ErrWriteConflict)
}
