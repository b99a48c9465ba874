package usecase

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pricechecker/admin/internal/domain"
)

// UploadState names a state of the bulk upload flow.
type UploadState string

const (
	UploadIdle      UploadState = "idle"
	UploadRejected  UploadState = "rejected"
	UploadReady     UploadState = "ready"
	UploadUploading UploadState = "uploading"
	UploadDone      UploadState = "uploaded"
	UploadFailed    UploadState = "upload_failed"
)

// previewLimit is how many rows the upload preview shows.
const previewLimit = 10

// UploadFlow is the bulk upload state machine: an operator-supplied CSV
// wholesale-replaces the remote catalog. The file is parsed and validated up
// front; the remote file is re-fetched at commit time solely for a current
// version token (its contents are discarded).
type UploadFlow struct {
	client domain.ContentClient

	mutex   sync.Mutex
	state   UploadState
	catalog *domain.Catalog
	missing []string
	lastErr error
}

// NewUploadFlow creates a flow in the Idle state.
func NewUploadFlow(client domain.ContentClient) *UploadFlow {
	return &UploadFlow{
		client: client,
		state:  UploadIdle,
	}
}

// SelectFile parses the uploaded CSV and validates its columns. A parse
// failure leaves the flow Idle. Missing required columns move the flow to
// Rejected; otherwise it is Ready to commit.
func (f *UploadFlow) SelectFile(r io.Reader) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	catalog, err := domain.ParseCSV(r)
	if err != nil {
		f.state = UploadIdle
		f.catalog = nil
		f.missing = nil
		f.lastErr = err
		return err
	}

	f.catalog = catalog
	f.missing = domain.MissingRequiredColumns(catalog.Columns)
	f.lastErr = nil

	if len(f.missing) > 0 {
		f.state = UploadRejected
		return fmt.Errorf("%w: %s", domain.ErrMissingColumns, strings.Join(f.missing, ", "))
	}

	f.state = UploadReady
	return nil
}

// State returns the flow's current state.
func (f *UploadFlow) State() UploadState {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.state
}

// Missing returns the required columns the selected file lacks.
func (f *UploadFlow) Missing() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.missing
}

// Columns returns the selected file's column order.
func (f *UploadFlow) Columns() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.catalog == nil {
		return nil
	}
	return f.catalog.Columns
}

// TotalRows returns the selected file's row count.
func (f *UploadFlow) TotalRows() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.catalog == nil {
		return 0
	}
	return len(f.catalog.Rows)
}

// Preview returns the first rows of the selected file, at most ten.
func (f *UploadFlow) Preview() []domain.Row {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.catalog == nil {
		return nil
	}
	if len(f.catalog.Rows) <= previewLimit {
		return f.catalog.Rows
	}
	return f.catalog.Rows[:previewLimit]
}

// Commit re-fetches the remote file for a current version token, then
// overwrites it with the selected catalog. If the token fetch fails the write
// is not attempted. An empty message gets the default commit message.
func (f *UploadFlow) Commit(ctx context.Context, message string) (string, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	switch f.state {
	case UploadReady, UploadDone, UploadFailed:
		// committable states
	default:
		return "", fmt.Errorf("%w: cannot upload while %s", domain.ErrFlowState, f.state)
	}

	if message == "" {
		message = fmt.Sprintf("Bulk upload - %d products - %s",
			len(f.catalog.Rows), time.Now().Format("2006-01-02 15:04"))
	}

	f.state = UploadUploading

	// Token fetch only; the rows come from the uploaded file. A concurrent
	// remote edit between preview and commit is caught by the token check at
	// write time, not here.
	_, sha, err := f.client.Fetch(ctx)
	if err != nil {
		f.state = UploadFailed
		f.lastErr = err
		return "", fmt.Errorf("could not get current version token: %w", err)
	}

	newSHA, err := f.client.Write(ctx, f.catalog, sha, message)
	if err != nil {
		f.state = UploadFailed
		f.lastErr = err
		return "", err
	}

	f.state = UploadDone
	f.lastErr = nil
	return newSHA, nil
}
