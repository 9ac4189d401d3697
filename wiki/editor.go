package wiki

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/listsync/config"
	"github.com/teranos/listsync/errors"
	"github.com/teranos/listsync/internal/retry"
	"github.com/teranos/listsync/logger"
)

// Editor writes page updates through a process-wide pacing gate. One
// Editor is shared by every job; successive writes across all jobs are
// spaced by the configured edit delay, which is what the target wiki's
// write-rate etiquette expects.
type Editor struct {
	api     api
	gate    *rate.Limiter
	policy  retry.Policy
	summary string
	log     *zap.SugaredLogger
}

// NewEditor wraps the client in pacing and retry behavior.
func NewEditor(client api, cfg config.WikiConfig, retryCfg config.RetryConfig, log *zap.SugaredLogger) *Editor {
	if log == nil {
		log = logger.Logger
	}
	delay := time.Duration(cfg.EditDelayMs) * time.Millisecond
	limiter := rate.NewLimiter(rate.Inf, 1)
	if delay > 0 {
		limiter = rate.NewLimiter(rate.Every(delay), 1)
	}
	return &Editor{
		api:     client,
		gate:    limiter,
		policy:  retry.FromConfig(retryCfg),
		summary: "Wikidata list updated",
		log:     log.Named("editor"),
	}
}

// Apply writes new text for the page, against the revision it was read
// at. Transport failures retry under the shared policy; edit conflicts
// and auth failures surface immediately.
func (e *Editor) Apply(ctx context.Context, p *Page, newText string) error {
	err := e.policy.Do(ctx, func(attempt int) error {
		if err := e.gate.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return errors.WrapContext(ctx, "waiting for the edit gate")
			}
			// the pacing delay would overrun the deadline
			return errors.Wrap(errors.ErrTimeout, err.Error())
		}
		if attempt > 1 {
			e.log.Warnw("retrying edit", "page", p.Title, "attempts", attempt)
		}
		return e.api.Edit(ctx, p.Title, newText, p.RevisionID, e.summary)
	})
	if err != nil {
		return errors.Wrapf(err, "applying edit to %q", p.Title)
	}
	e.log.Infow("page edited", "page", p.Title, "revision", p.RevisionID)
	return nil
}
