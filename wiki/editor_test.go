package wiki

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/listsync/config"
	"github.com/teranos/listsync/errors"
)

// fakeAPI records edit calls and plays back scripted results.
type fakeAPI struct {
	mu      sync.Mutex
	edits   []time.Time
	results []error // result per call, last one repeats
}

func (f *fakeAPI) GetPage(ctx context.Context, title string) (*Page, error) {
	return &Page{Title: title, Text: "", RevisionID: 1}, nil
}

func (f *fakeAPI) Edit(ctx context.Context, title, text string, baseRevID int64, summary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, time.Now())
	idx := len(f.edits) - 1
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	if idx < 0 {
		return nil
	}
	return f.results[idx]
}

func (f *fakeAPI) calls() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.edits...)
}

func testEditor(api api, delayMs int, attempts int) *Editor {
	return NewEditor(api,
		config.WikiConfig{EditDelayMs: delayMs},
		config.RetryConfig{MaxAttempts: attempts, Backoff: "fixed", InitialBackoffMs: 1, MaxBackoffMs: 1},
		nil)
}

func TestEditorPacesSuccessiveWrites(t *testing.T) {
	api := &fakeAPI{}
	e := testEditor(api, 60, 1)
	ctx := context.Background()
	p := &Page{Title: "List", RevisionID: 7}

	for i := 0; i < 3; i++ {
		require.NoError(t, e.Apply(ctx, p, "text"))
	}

	calls := api.calls()
	require.Len(t, calls, 3)
	for i := 1; i < len(calls); i++ {
		gap := calls[i].Sub(calls[i-1])
		assert.GreaterOrEqual(t, gap, 50*time.Millisecond,
			"writes %d and %d must be spaced by the edit delay", i-1, i)
	}
}

func TestEditorRetriesTransportFailures(t *testing.T) {
	api := &fakeAPI{results: []error{
		errors.Wrap(errors.ErrTransport, "HTTP 503"),
		nil,
	}}
	e := testEditor(api, 0, 3)

	err := e.Apply(context.Background(), &Page{Title: "List"}, "text")
	assert.NoError(t, err)
	assert.Len(t, api.calls(), 2)
}

func TestEditorGivesUpAfterAttemptCap(t *testing.T) {
	api := &fakeAPI{results: []error{errors.Wrap(errors.ErrTransport, "HTTP 503")}}
	e := testEditor(api, 0, 2)

	err := e.Apply(context.Background(), &Page{Title: "List"}, "text")
	assert.True(t, errors.Is(err, errors.ErrTransport))
	assert.Len(t, api.calls(), 2, "exactly the attempt cap, no more")
}

func TestEditorDoesNotRetryConflicts(t *testing.T) {
	api := &fakeAPI{results: []error{errors.Wrap(errors.ErrEditConflict, "newer revision")}}
	e := testEditor(api, 0, 5)

	err := e.Apply(context.Background(), &Page{Title: "List"}, "text")
	assert.True(t, errors.Is(err, errors.ErrEditConflict))
	assert.Len(t, api.calls(), 1, "conflicts surface immediately")
}

func TestEditorDoesNotRetryAuthFailures(t *testing.T) {
	api := &fakeAPI{results: []error{errors.Wrap(errors.ErrAuthFailure, "badtoken")}}
	e := testEditor(api, 0, 5)

	err := e.Apply(context.Background(), &Page{Title: "List"}, "text")
	assert.True(t, errors.Is(err, errors.ErrAuthFailure))
	assert.Len(t, api.calls(), 1)
}
