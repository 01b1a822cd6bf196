package core

import (
	"context"
	"errors"
	"strings"

	"github.com/chifamba/dzinza-sub004/pkg/domain"
)

func codeOf(err error) domain.Code {
	return domain.CodeOf(err)
}

func notFound(format string, args ...any) error {
	return domain.Newf(domain.CodeNotFound, format, args...)
}

func invalid(format string, args ...any) error {
	return domain.Newf(domain.CodeValidation, format, args...)
}

func conflict(format string, args ...any) error {
	return domain.Newf(domain.CodeConflict, format, args...)
}

func forbidden(format string, args ...any) error {
	return domain.Newf(domain.CodeForbidden, format, args...)
}

// translate maps store facts and rule outcomes onto the error taxonomy.
// Already coded errors pass through unchanged.
func translate(err error) *domain.Error {
	if err == nil {
		return nil
	}
	var coded *domain.Error
	if errors.As(err, &coded) {
		return coded
	}
	var violation domain.RuleViolationError
	if errors.As(err, &violation) {
		return domain.Wrap(err, domain.CodeValidation, violationSummary(violation.Result))
	}
	switch {
	case errors.Is(err, domain.ErrOutcomeUnknown):
		return &domain.Error{Code: domain.CodeConsistency, Message: "commit outcome unknown", Err: err, OutcomeUnknown: true}
	case errors.Is(err, domain.ErrStale), errors.Is(err, domain.ErrUnavailable):
		return domain.Wrap(err, domain.CodeConsistency, "storage did not accept the commit")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return domain.Wrap(err, domain.CodeConsistency, "operation abandoned before commit")
	case errors.Is(err, domain.ErrNotFound):
		return domain.Wrap(err, domain.CodeNotFound, "record not found")
	case errors.Is(err, domain.ErrConflict):
		return domain.Wrap(err, domain.CodeConflict, "record conflicts with existing data")
	}
	return domain.Wrap(err, domain.CodeInternal, "unexpected failure")
}

func violationSummary(res Result) string {
	msgs := make([]string, 0, len(res.Violations))
	for _, v := range res.Violations {
		if v.Severity != SeverityBlock {
			continue
		}
		msgs = append(msgs, v.Rule+": "+v.Message)
	}
	if len(msgs) == 0 {
		return "transaction blocked by rules"
	}
	return strings.Join(msgs, "; ")
}

// retryable reports whether a translated error may succeed on a fresh attempt.
func retryable(err *domain.Error) bool {
	if err == nil || err.Code != domain.CodeConsistency || err.OutcomeUnknown {
		return false
	}
	return !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled)
}
