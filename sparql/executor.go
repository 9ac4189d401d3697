package sparql

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/listsync/config"
	"github.com/teranos/listsync/errors"
	"github.com/teranos/listsync/internal/httpclient"
	"github.com/teranos/listsync/internal/retry"
)

// queryService performs one query round trip. The indirection exists so
// tests can count in-flight executions without a network.
type queryService interface {
	runQuery(ctx context.Context, query string) ([]byte, error)
}

// Executor runs SPARQL queries with a process-wide concurrency cap, a
// per-attempt timeout and the shared retry policy. One Executor is shared
// by every job; its semaphore is the global simultaneous-query limiter.
type Executor struct {
	service queryService
	slots   chan struct{}
	timeout time.Duration
	policy  retry.Policy
	logger  *zap.SugaredLogger
}

// NewExecutor creates an executor for the configured endpoint.
func NewExecutor(cfg config.SparqlConfig, retryCfg config.RetryConfig, log *zap.SugaredLogger) *Executor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	slots := cfg.MaxConcurrent
	if slots < 1 {
		slots = 1
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return &Executor{
		service: &httpService{
			endpoint: cfg.Endpoint,
			client:   httpclient.New(timeout),
		},
		slots:   make(chan struct{}, slots),
		timeout: timeout,
		policy:  retry.FromConfig(retryCfg),
		logger:  log.Named("sparql"),
	}
}

// newExecutorWithService is the test seam.
func newExecutorWithService(svc queryService, maxConcurrent int, timeout time.Duration, policy retry.Policy) *Executor {
	return &Executor{
		service: svc,
		slots:   make(chan struct{}, maxConcurrent),
		timeout: timeout,
		policy:  policy,
		logger:  zap.NewNop().Sugar(),
	}
}

// Execute runs the query and parses its result. Attempts are sequential;
// each one acquires a fresh concurrency slot and is bounded by the
// per-call timeout. Timeout and transport failures are retried up to the
// attempt cap; malformed responses fail immediately.
func (e *Executor) Execute(ctx context.Context, query string) (*Result, error) {
	var result *Result

	err := e.policy.Do(ctx, func(attempt int) error {
		body, err := e.runOnce(ctx, query)
		if err != nil {
			e.logger.Warnw("query attempt failed", "attempt", attempt, "error", err)
			return err
		}
		result, err = ParseResult(body)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "executing query")
	}

	e.logger.Debugw("query complete", "rows", len(result.Rows))
	return result, nil
}

// runOnce is a single bounded attempt: acquire a slot, run with deadline,
// release.
func (e *Executor) runOnce(ctx context.Context, query string) ([]byte, error) {
	select {
	case e.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.WrapContext(ctx, "waiting for a query slot")
	}
	defer func() { <-e.slots }()

	attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	return e.service.runQuery(attemptCtx, query)
}

// httpService queries a SPARQL endpoint over HTTP GET with JSON results.
type httpService struct {
	endpoint string
	client   *httpclient.Client
}

func (s *httpService) runQuery(ctx context.Context, query string) ([]byte, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("format", "json")
	return s.client.Get(ctx, s.endpoint+"?"+params.Encode())
}
