package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	apperrors "github.com/uvalib/tracksys2/internal/errors"
	"github.com/uvalib/tracksys2/internal/poller"
)

// jobWatch runs jobs-service operations. Each one is a POST that answers with
// a job id as plain text, then /api/jobs/:id is polled until the job ends.
type jobWatch struct {
	deps      StoreDeps
	poll      PollOptions
	extractor *poller.StatusExtractor
	logger    *slog.Logger
}

type jobOperation struct {
	name      string
	path      string // relative to the jobs service
	body      any
	onSuccess func(ctx context.Context)
}

func (w *jobWatch) start(ctx context.Context, slot *poller.Slot, op jobOperation) bool {
	if slot.Busy() {
		return false
	}
	jobsURL := w.deps.System.JobsURL()
	if jobsURL == "" {
		w.deps.System.SetError(apperrors.Internal("jobs service url is not configured"))
		return false
	}
	target := jobsURL + op.path
	runCtx := background(ctx)

	trigger := func(ctx context.Context) (poller.Ticket, error) {
		id, err := w.deps.Backend.PostText(ctx, target, op.body)
		if err != nil {
			return poller.Ticket{}, err
		}
		id = strings.TrimSpace(id)
		if id == "" {
			return poller.Ticket{}, apperrors.Internalf("%s: jobs service returned no job id", op.name)
		}
		return poller.Ticket{JobID: id}, nil
	}
	check := func(ctx context.Context, t poller.Ticket) (poller.Status, error) {
		raw, err := w.deps.Backend.GetText(ctx, "/api/jobs/"+t.JobID)
		if err != nil {
			return poller.Status{}, err
		}
		st, err := w.extractor.Extract([]byte(raw))
		if err != nil {
			return poller.Status{}, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "job %s status", t.JobID)
		}
		return st, nil
	}

	opts := w.poll.options(op.name, w.logger)
	opts.OnSuccess = func(t poller.Ticket, _ poller.Status) {
		w.logger.InfoContext(runCtx, "job finished", slog.String("operation", op.name), slog.String("job_id", t.JobID))
		if op.onSuccess != nil {
			op.onSuccess(runCtx)
		}
	}
	opts.OnFailure = func(_ poller.Ticket, err error) {
		var failed *poller.FailedError
		if errors.As(err, &failed) {
			w.deps.System.SetErrorMessage(failed.Error())
			return
		}
		w.deps.System.SetError(fmt.Errorf("%s: %w", op.name, err))
	}

	_, started := slot.TryStart(runCtx, trigger, check, opts)
	return started
}
