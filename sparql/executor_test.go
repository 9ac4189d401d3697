package sparql

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/listsync/errors"
	"github.com/teranos/listsync/internal/retry"
)

func testPolicy(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts:    attempts,
		Exponential:    false,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}
}

// countingService tracks in-flight and total invocations.
type countingService struct {
	mu        sync.Mutex
	inFlight  int
	maxSeen   int
	calls     atomic.Int32
	delay     time.Duration
	responses func(call int) ([]byte, error)
}

func (s *countingService) runQuery(ctx context.Context, query string) ([]byte, error) {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxSeen {
		s.maxSeen = s.inFlight
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	call := int(s.calls.Add(1))
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, errors.WrapContext(ctx, "query aborted")
		}
	}
	return s.responses(call)
}

const threeRowBody = `{
	"head": {"vars": ["item"]},
	"results": {"bindings": [
		{"item": {"type": "uri", "value": "http://www.wikidata.org/entity/Q1"}},
		{"item": {"type": "uri", "value": "http://www.wikidata.org/entity/Q2"}},
		{"item": {"type": "uri", "value": "http://www.wikidata.org/entity/Q3"}}
	]}
}`

func TestExecuteConcurrencyBound(t *testing.T) {
	const limit = 3
	svc := &countingService{
		delay:     20 * time.Millisecond,
		responses: func(int) ([]byte, error) { return []byte(threeRowBody), nil },
	}
	exec := newExecutorWithService(svc, limit, time.Second, testPolicy(1))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := exec.Execute(context.Background(), "SELECT ?item WHERE { }")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, svc.maxSeen, limit,
		"in-flight query executions must never exceed the configured cap")
	assert.Equal(t, int32(20), svc.calls.Load())
}

func TestExecuteRetriesTimeoutThenSucceeds(t *testing.T) {
	svc := &countingService{
		responses: func(call int) ([]byte, error) {
			if call == 1 {
				return nil, errors.Wrap(errors.ErrTimeout, "attempt deadline exceeded")
			}
			return []byte(threeRowBody), nil
		},
	}
	exec := newExecutorWithService(svc, 1, time.Second, testPolicy(2))

	result, err := exec.Execute(context.Background(), "SELECT ?item WHERE { }")
	require.NoError(t, err)
	assert.Len(t, result.Rows, 3, "job proceeds with exactly the rows of the successful attempt")
	assert.Equal(t, int32(2), svc.calls.Load(), "total attempts recorded = 2")
}

func TestExecuteExhaustsAttemptCap(t *testing.T) {
	svc := &countingService{
		responses: func(int) ([]byte, error) {
			return nil, errors.Wrap(errors.ErrTransport, "connection refused")
		},
	}
	exec := newExecutorWithService(svc, 1, time.Second, testPolicy(3))

	_, err := exec.Execute(context.Background(), "SELECT ?item WHERE { }")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTransport))
	assert.Equal(t, int32(3), svc.calls.Load(), "failing queries are retried exactly attempt-cap times")
}

func TestExecuteMalformedResponseIsFatal(t *testing.T) {
	svc := &countingService{
		responses: func(int) ([]byte, error) { return []byte(`{"banana": true}`), nil },
	}
	exec := newExecutorWithService(svc, 1, time.Second, testPolicy(3))

	_, err := exec.Execute(context.Background(), "SELECT ?item WHERE { }")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMalformedResponse))
	assert.Equal(t, int32(1), svc.calls.Load(), "malformed responses are not retried")
}

func TestExecutePerAttemptTimeout(t *testing.T) {
	svc := &countingService{
		delay:     100 * time.Millisecond,
		responses: func(int) ([]byte, error) { return []byte(threeRowBody), nil },
	}
	exec := newExecutorWithService(svc, 1, 10*time.Millisecond, testPolicy(2))

	_, err := exec.Execute(context.Background(), "SELECT ?item WHERE { }")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTimeout))
	assert.Equal(t, int32(2), svc.calls.Load(), "each timeout counts as one failed attempt")
}
