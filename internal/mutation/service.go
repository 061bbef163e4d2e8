// Package mutation applies user actions to the entity table optimistically.
//
// Every operation reads the latest snapshot inside a table update, commits
// the new state before returning, and confirms with the mutator in the
// background. A failed confirmation is logged and, for actions the user
// explicitly asked for, reported through the notifier. The optimistic state
// is never rolled back; a later authoritative fetch may overwrite it.
package mutation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ideaflow/ideaflow/internal/collab"
	"github.com/ideaflow/ideaflow/internal/notify"
	"github.com/ideaflow/ideaflow/internal/store"
	"github.com/ideaflow/ideaflow/pkg/telemetry"
)

const defaultConfirmTimeout = 15 * time.Second

// IDProvider issues identifiers for optimistic records.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

func (uuidProvider) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Config wires a Service.
type Config struct {
	Table          *store.Table
	Mutator        collab.Mutator
	Notifier       notify.Notifier
	Logger         *zap.Logger
	Clock          func() time.Time
	IDProvider     IDProvider
	ConfirmTimeout time.Duration
	Policy         *bluemonday.Policy
}

// Service runs optimistic mutations.
type Service struct {
	table    *store.Table
	mutator  collab.Mutator
	notifier notify.Notifier
	logger   *zap.Logger
	clock    func() time.Time
	ids      IDProvider
	timeout  time.Duration
	policy   *bluemonday.Policy

	inflight sync.WaitGroup
}

// NewService validates cfg and fills defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Table == nil {
		return nil, newServiceError(opServiceNew, "missing_table", errMissingTable)
	}
	if cfg.Mutator == nil {
		return nil, newServiceError(opServiceNew, "missing_mutator", errMissingMutator)
	}

	s := &Service{
		table:    cfg.Table,
		mutator:  cfg.Mutator,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		clock:    cfg.Clock,
		ids:      cfg.IDProvider,
		timeout:  cfg.ConfirmTimeout,
		policy:   cfg.Policy,
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.ids == nil {
		s.ids = uuidProvider{}
	}
	if s.timeout <= 0 {
		s.timeout = defaultConfirmTimeout
	}
	if s.policy == nil {
		s.policy = bluemonday.StrictPolicy()
	}
	return s, nil
}

// Wait blocks until every dispatched confirmation has finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) newID(operation string) (string, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return "", newServiceError(operation, reasonIDUnavailable, err)
	}
	return id, nil
}

// sanitize strips markup and surrounding whitespace from user content.
func (s *Service) sanitize(content string) string {
	return strings.TrimSpace(s.policy.Sanitize(content))
}

// confirmation describes one background call.
type confirmation struct {
	operation  string
	actorID    string
	kind       notify.Type
	userFacing bool
	entityIDs  []string
	run        func(ctx context.Context) error
}

// dispatch runs the confirmation in its own goroutine. The caller's context
// only contributes values such as the trace; its cancellation does not stop
// the call.
func (s *Service) dispatch(parent context.Context, c confirmation) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.timeout)
		defer cancel()
		ctx, span := telemetry.StartSpan(ctx, c.operation)
		span.SetAttributes(
			attribute.String("actor_id", c.actorID),
			attribute.StringSlice("entity_ids", c.entityIDs),
		)
		defer span.End()

		err := s.run(ctx, c)
		telemetry.RecordConfirmation(ctx, c.operation, err == nil)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.Warn("confirmation failed",
				zap.String("op", c.operation),
				zap.String("actor_id", c.actorID),
				zap.Strings("entity_ids", c.entityIDs),
				zap.Error(err))
			if c.userFacing {
				s.notifier.Notify(notify.Event{
					UserID:    c.actorID,
					Type:      c.kind,
					Success:   false,
					Message:   err.Error(),
					EntityIDs: c.entityIDs,
				})
			}
			return
		}

		s.logger.Debug("confirmation succeeded",
			zap.String("op", c.operation),
			zap.Strings("entity_ids", c.entityIDs))
		if c.userFacing {
			s.notifier.Notify(notify.Event{
				UserID:    c.actorID,
				Type:      c.kind,
				Success:   true,
				EntityIDs: c.entityIDs,
			})
		}
	}()
}

func (s *Service) run(ctx context.Context, c confirmation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("confirmation panicked: %v", r)
		}
	}()
	return c.run(ctx)
}

// writeBack merges a canonical record returned by the mutator.
func (s *Service) writeBack(operation string, fn func(b *store.Builder) error) error {
	if _, err := s.table.Update(fn); err != nil {
		return newServiceError(operation, "write_back_failed", err)
	}
	return nil
}

func requireActor(operation, actorID string) error {
	if strings.TrimSpace(actorID) == "" {
		return newServiceError(operation, reasonMissingActor, ErrUnauthenticated)
	}
	return nil
}
