package mutation

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the target entity is not in the table.
	// No confirmation is dispatched in that case.
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthenticated = errors.New("actor is required")
	ErrForbidden       = errors.New("actor is not allowed")
	errMissingTable    = errors.New("entity table is required")
	errMissingMutator  = errors.New("mutator is required")
)

// ServiceError carries a stable "operation.reason" code next to the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew       = "mutation.service.new"
	opToggleSupport    = "mutation.toggle_support"
	opRateIdea         = "mutation.rate_idea"
	opAddReply         = "mutation.add_reply"
	opToggleReplyLike  = "mutation.toggle_reply_like"
	opCreatePost       = "mutation.create_post"
	opCreateIdea       = "mutation.create_idea"
	opCreateTopic      = "mutation.create_topic"
	opAddTopicPost     = "mutation.add_topic_post"
	opToggleUpvote     = "mutation.toggle_topic_upvote"
	opMarkAnswer       = "mutation.mark_answer"
	opToggleMembership = "mutation.toggle_membership"
	opReportContent    = "mutation.report_content"

	reasonMissingActor  = "missing_actor"
	reasonNotFound      = "not_found"
	reasonInvalid       = "invalid_input"
	reasonForbidden     = "forbidden"
	reasonCommitFailed  = "commit_failed"
	reasonIDUnavailable = "id_unavailable"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// classify wraps an error returned from inside a table update with the
// reason matching its sentinel.
func classify(operation string, err error) error {
	var serviceErr *ServiceError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &serviceErr):
		return err
	case errors.Is(err, ErrNotFound):
		return newServiceError(operation, reasonNotFound, err)
	case errors.Is(err, ErrInvalidInput):
		return newServiceError(operation, reasonInvalid, err)
	case errors.Is(err, ErrForbidden):
		return newServiceError(operation, reasonForbidden, err)
	case errors.Is(err, ErrUnauthenticated):
		return newServiceError(operation, reasonMissingActor, err)
	}
	return newServiceError(operation, reasonCommitFailed, err)
}
