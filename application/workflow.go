// Package application provides the workflow service for data-promotion
// requests.
package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/promote/domain/notification"
	"github.com/felixgeelhaar/promote/domain/promotion"
	"github.com/felixgeelhaar/promote/infrastructure/logging"
)

const (
	instrumentationName  = "github.com/felixgeelhaar/promote/application"
	defaultNotifyTimeout = 30 * time.Second
	defaultTombstones    = 1024
	defaultPageLimit     = 50
	maxPageLimit         = 500
)

// ServiceConfig contains configuration for the workflow service.
type ServiceConfig struct {
	Router        promotion.Router
	Escalation    promotion.EscalationPolicy
	Gate          promotion.Gate
	Authorizer    promotion.Authorizer
	Snapshots     promotion.SnapshotProvider
	Notifier      notification.Notifier
	Metrics       Metrics
	Clock         func() time.Time
	NewID         func() string
	TokenHistory  int
	NotifyTimeout time.Duration
}

// Service is the facade over the promotion lifecycle. It is safe for
// concurrent use; per-request ordering is delegated to the store.
type Service struct {
	store         promotion.Store
	engine        *promotion.Engine
	gate          promotion.Gate
	authorizer    promotion.Authorizer
	snapshots     promotion.SnapshotProvider
	notifier      notification.Notifier
	metrics       Metrics
	tracer        trace.Tracer
	now           func() time.Time
	newID         func() string
	tokenHistory  int
	notifyTimeout time.Duration
	deleted       *tombstones

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// NewWorkflowService creates a workflow service over store.
func NewWorkflowService(store promotion.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	config := ServiceConfig{}
	for _, opt := range opts {
		opt(&config)
	}

	router := config.Router
	if router == nil {
		router = promotion.NewTableRouter(config.Escalation)
	}

	s := &Service{
		store:         store,
		engine:        promotion.NewEngine(router),
		gate:          config.Gate,
		authorizer:    config.Authorizer,
		snapshots:     config.Snapshots,
		notifier:      config.Notifier,
		metrics:       config.Metrics,
		tracer:        otel.Tracer(instrumentationName),
		now:           config.Clock,
		newID:         config.NewID,
		tokenHistory:  config.TokenHistory,
		notifyTimeout: config.NotifyTimeout,
		deleted:       newTombstones(defaultTombstones),
	}

	if s.gate.Threshold <= 0 {
		s.gate = promotion.NewGate(0)
	}
	if s.authorizer == nil {
		s.authorizer = promotion.AllowAnyReviewer
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.tokenHistory <= 0 {
		s.tokenHistory = promotion.DefaultTokenHistory
	}
	if s.notifyTimeout <= 0 {
		s.notifyTimeout = defaultNotifyTimeout
	}

	return s, nil
}

// Create stores a new draft request for snapshot. The title defaults to
// the project name.
func (s *Service) Create(ctx context.Context, snapshot *promotion.ProjectSnapshot, applicant string, space promotion.TargetSpace, title string) (pr *promotion.PullRequest, err error) {
	ctx, done := s.observe(ctx, "create", "")
	defer func() { done(err) }()

	if strings.TrimSpace(applicant) == "" {
		return nil, fmt.Errorf("%w: applicant is required", promotion.ErrInvalidRequest)
	}
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}
	if !space.IsValid() {
		return nil, fmt.Errorf("%w: %q", promotion.ErrInvalidTargetSpace, space)
	}

	pr = promotion.NewPullRequest(s.newID(), snapshot, title, space, applicant, s.now())
	if err := s.store.Create(ctx, pr); err != nil {
		return nil, translate(err)
	}

	logging.Info().
		Add(logging.Component("workflow")).
		Add(logging.RequestID(pr.ID)).
		Add(logging.ProjectID(pr.Snapshot.ProjectID)).
		Add(logging.Actor(applicant)).
		Msg("promotion request created")

	s.emit(ctx, promotion.Event{
		Type:      promotion.EventCreated,
		RequestID: pr.ID,
		Timestamp: pr.CreatedAt,
		Actor:     applicant,
		To:        promotion.StatusDraft,
	}, pr)

	return pr.Clone(), nil
}

// CreateFromProject fetches the project's current snapshot and creates a
// draft request for it.
func (s *Service) CreateFromProject(ctx context.Context, projectID, applicant string, space promotion.TargetSpace, title string) (*promotion.PullRequest, error) {
	if s.snapshots == nil {
		return nil, ErrNoSnapshotProvider
	}
	snapshot, err := s.fetchSnapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, snapshot, applicant, space, title)
}

// Submit moves a draft or returned request into level1 review. Only the
// applicant may submit, and the snapshot must pass the completeness gate.
func (s *Service) Submit(ctx context.Context, id, actor, token string) (pr *promotion.PullRequest, err error) {
	ctx, done := s.observe(ctx, "submit", id)
	defer func() { done(err) }()

	fresh, err := s.refreshForSubmit(ctx, id, actor, token)
	if err != nil {
		return nil, err
	}

	return s.apply(ctx, id, transition{
		op:     "submit",
		cmd:    promotion.Command{Action: promotion.ActionSubmit, Actor: actor},
		token:  token,
		before: requireApplicant(actor),
		after: func(_ context.Context, current *promotion.PullRequest) error {
			snapshot := current.Snapshot
			if fresh != nil && snapshot != nil && fresh.ProjectID == snapshot.ProjectID {
				snapshot = fresh
			}
			return s.gate.CheckSubmittable(snapshot)
		},
	})
}

// Withdraw returns a pending or returned request to draft.
func (s *Service) Withdraw(ctx context.Context, id, actor, token string) (pr *promotion.PullRequest, err error) {
	ctx, done := s.observe(ctx, "withdraw", id)
	defer func() { done(err) }()

	return s.apply(ctx, id, transition{
		op:     "withdraw",
		cmd:    promotion.Command{Action: promotion.ActionWithdraw, Actor: actor},
		token:  token,
		before: requireApplicant(actor),
	})
}

// Review applies approve, reject or return at the request's current level.
func (s *Service) Review(ctx context.Context, id, actor string, action promotion.Action, comment, token string) (*promotion.PullRequest, error) {
	return s.ReviewAtLevel(ctx, id, actor, promotion.LevelNone, action, comment, token)
}

// ReviewAtLevel is Review with an expected level. When level is set and
// the request sits at another level the call fails with InvalidTransition.
func (s *Service) ReviewAtLevel(ctx context.Context, id, actor string, level promotion.Level, action promotion.Action, comment, token string) (pr *promotion.PullRequest, err error) {
	ctx, done := s.observe(ctx, "review", id)
	defer func() { done(err) }()

	if !action.IsReview() {
		return nil, fmt.Errorf("%w: %q is not a review action", promotion.ErrInvalidAction, action)
	}
	if action.RequiresComment() && strings.TrimSpace(comment) == "" {
		return nil, fmt.Errorf("%w: %s needs a comment", promotion.ErrCommentRequired, action)
	}
	if level != promotion.LevelNone && !level.IsValid() {
		return nil, fmt.Errorf("%w: unknown level %q", promotion.ErrInvalidRequest, level)
	}

	return s.apply(ctx, id, transition{
		op: "review",
		cmd: promotion.Command{
			Action:      action,
			Actor:       actor,
			Comment:     comment,
			ExpectLevel: level,
		},
		token: token,
		after: func(ctx context.Context, current *promotion.PullRequest) error {
			ok, err := s.authorizer.CanReview(ctx, actor, current.CurrentLevel, current)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrAuthorizerUnavailable, err)
			}
			if !ok {
				return fmt.Errorf("%w: %s may not review at %s", promotion.ErrForbidden, actor, current.CurrentLevel)
			}
			return nil
		},
	})
}

// Delete hard-deletes a draft request. Only the applicant may delete.
func (s *Service) Delete(ctx context.Context, id, actor, token string) (err error) {
	ctx, done := s.observe(ctx, "delete", id)
	defer func() { done(err) }()

	if s.deleted.replay(id, actor, token) {
		return nil
	}

	var removed *promotion.PullRequest
	err = s.store.Delete(ctx, id, func(current *promotion.PullRequest) error {
		if current.Applicant != actor {
			return forbiddenApplicant(actor)
		}
		if err := s.engine.CheckDelete(current); err != nil {
			return err
		}
		removed = current
		return nil
	})
	if err != nil {
		if errors.Is(err, promotion.ErrNotFound) && s.deleted.replay(id, actor, token) {
			return nil
		}
		s.logRejected("delete", id, actor, err)
		return translate(err)
	}
	s.deleted.add(id, actor, token)

	logging.Info().
		Add(logging.Component("workflow")).
		Add(logging.RequestID(id)).
		Add(logging.Action(promotion.ActionDelete)).
		Add(logging.Actor(actor)).
		Msg("promotion request deleted")

	s.metrics.TransitionApplied(ctx, promotion.ActionDelete, promotion.StatusDraft, "")
	s.emit(ctx, promotion.Event{
		Type:      promotion.EventDeleted,
		RequestID: id,
		Timestamp: s.now(),
		Actor:     actor,
		From:      promotion.StatusDraft,
	}, removed)

	return nil
}

// Get returns a request by ID.
func (s *Service) Get(ctx context.Context, id string) (pr *promotion.PullRequest, err error) {
	ctx, done := s.observe(ctx, "get", id)
	defer func() { done(err) }()

	pr, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return pr, nil
}

// History returns the review history of a request, oldest first.
func (s *Service) History(ctx context.Context, id string) ([]promotion.ReviewRecord, error) {
	pr, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return append([]promotion.ReviewRecord(nil), pr.ReviewHistory...), nil
}

// Summary counts an applicant's requests by status. An empty applicant
// counts every request.
func (s *Service) Summary(ctx context.Context, applicant string) (counts map[promotion.Status]int, err error) {
	ctx, done := s.observe(ctx, "summary", "")
	defer func() { done(err) }()

	items, _, err := s.store.List(ctx, promotion.ListFilter{Applicant: applicant})
	if err != nil {
		return nil, translate(err)
	}
	counts = make(map[promotion.Status]int, len(promotion.AllStatuses))
	for _, status := range promotion.AllStatuses {
		counts[status] = 0
	}
	for _, pr := range items {
		counts[pr.Status]++
	}
	return counts, nil
}

// Close stops accepting notifications and waits for in-flight deliveries.
func (s *Service) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.inflight.Wait()
	return nil
}

// transition describes one mutating call.
type transition struct {
	op    string
	cmd   promotion.Command
	token string

	// before runs ahead of the engine against the current record.
	before func(ctx context.Context, current *promotion.PullRequest) error

	// after runs once the engine accepted the move, before it is persisted.
	after func(ctx context.Context, current *promotion.PullRequest) error
}

// apply runs t through the store's per-id mutation. Checks are evaluated
// against the record the store hands in, so a CAS store that retries sees
// them re-run against the fresh state.
func (s *Service) apply(ctx context.Context, id string, t transition) (*promotion.PullRequest, error) {
	var (
		outcome  *promotion.Outcome
		replayed *promotion.PullRequest
	)

	updated, err := s.store.Mutate(ctx, id, func(current *promotion.PullRequest) (*promotion.PullRequest, error) {
		outcome, replayed = nil, nil

		if applied, ok := current.FindToken(t.token); ok {
			if !applied.Matches(t.cmd.Action, t.cmd.Actor) {
				return nil, fmt.Errorf("%w: idempotency token already used for %s by %s",
					promotion.ErrConflict, applied.Action, applied.Actor)
			}
			replayed = current
			return nil, errReplay
		}

		if t.before != nil {
			if err := t.before(ctx, current); err != nil {
				return nil, err
			}
		}

		cmd := t.cmd
		cmd.At = s.now()
		cmd.RecordID = s.newID()
		out, err := s.engine.Apply(current, cmd)
		if err != nil {
			return nil, err
		}

		if t.after != nil {
			if err := t.after(ctx, current); err != nil {
				return nil, err
			}
		}

		out.Request.RememberToken(promotion.AppliedToken{
			Token:     t.token,
			Action:    cmd.Action,
			Actor:     cmd.Actor,
			RecordID:  out.Record.ID,
			Version:   out.Request.Version,
			AppliedAt: cmd.At,
		}, s.tokenHistory)

		outcome = out
		return out.Request, nil
	})

	if errors.Is(err, errReplay) && replayed != nil {
		logging.Debug().
			Add(logging.Component("workflow")).
			Add(logging.RequestID(id)).
			Add(logging.Action(t.cmd.Action)).
			Add(logging.Actor(t.cmd.Actor)).
			Add(logging.Replayed(true)).
			Msg("idempotent replay")
		return replayed, nil
	}
	if err != nil {
		s.logRejected(t.op, id, t.cmd.Actor, err)
		return nil, translate(err)
	}

	ev := outcome.Event
	logging.Info().
		Add(logging.Component("workflow")).
		Add(logging.RequestID(id)).
		Add(logging.Action(t.cmd.Action)).
		Add(logging.FromStatus(ev.From)).
		Add(logging.ToStatus(ev.To)).
		Add(logging.Level(ev.Level)).
		Add(logging.Actor(t.cmd.Actor)).
		Msg("transition applied")

	s.metrics.TransitionApplied(ctx, t.cmd.Action, ev.From, ev.To)
	s.emit(ctx, ev, updated)

	return updated, nil
}

// refreshForSubmit fetches the project's current snapshot when a provider
// is configured and the submit is not already known to fail or replay.
func (s *Service) refreshForSubmit(ctx context.Context, id, actor, token string) (*promotion.ProjectSnapshot, error) {
	if s.snapshots == nil {
		return nil, nil
	}
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if _, ok := current.FindToken(token); ok {
		return nil, nil
	}
	if current.Applicant != actor || !current.Status.Allows(promotion.ActionSubmit) || current.Snapshot == nil {
		return nil, nil
	}
	return s.fetchSnapshot(ctx, current.Snapshot.ProjectID)
}

func (s *Service) fetchSnapshot(ctx context.Context, projectID string) (*promotion.ProjectSnapshot, error) {
	snapshot, err := s.snapshots.FetchSnapshot(ctx, projectID)
	if err != nil {
		if Kind(err) != KindInternal {
			return nil, err
		}
		return nil, fmt.Errorf("%w: project %s: %w", ErrSnapshotUnavailable, projectID, err)
	}
	return snapshot, nil
}

// emit delivers a notification asynchronously. Delivery failures are
// logged and never reach the caller.
func (s *Service) emit(ctx context.Context, ev promotion.Event, pr *promotion.PullRequest) {
	if s.notifier == nil {
		return
	}

	event, err := notification.FromTransition(s.newID(), ev, pr)
	if err != nil {
		logging.Error().
			Add(logging.Component("workflow")).
			Add(logging.RequestID(ev.RequestID)).
			Add(logging.ErrorField(err)).
			Msg("failed to build notification")
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		logging.Warn().
			Add(logging.Component("workflow")).
			Add(logging.RequestID(ev.RequestID)).
			Add(logging.Str("event_type", string(ev.Type))).
			Msg("service closed, notification dropped")
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.inflight.Done()

		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
		defer cancel()

		if err := s.notifier.Notify(nctx, event); err != nil {
			logging.Error().
				Add(logging.Component("workflow")).
				Add(logging.RequestID(ev.RequestID)).
				Add(logging.Str("event_type", string(ev.Type))).
				Add(logging.ErrorField(err)).
				Msg("notification delivery failed")
		}
	}()
}

// observe starts a span and returns a func that finishes it and records
// the outcome.
func (s *Service) observe(ctx context.Context, op, id string) (context.Context, func(error)) {
	start := time.Now()
	attrs := []attribute.KeyValue{attribute.String("promotion.operation", op)}
	if id != "" {
		attrs = append(attrs, attribute.String("promotion.id", id))
	}
	ctx, span := s.tracer.Start(ctx, "promotion."+op, trace.WithAttributes(attrs...))

	return ctx, func(err error) {
		if err != nil {
			kind := Kind(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, kind)
			s.metrics.OperationRejected(ctx, op, kind)
		}
		s.metrics.OperationCompleted(ctx, op, time.Since(start))
		span.End()
	}
}

func (s *Service) logRejected(op, id, actor string, err error) {
	event := logging.Debug()
	if k := Kind(err); k == KindStoreUnavailable || k == KindInternal {
		event = logging.Warn()
	}
	event.
		Add(logging.Component("workflow")).
		Add(logging.Operation(op)).
		Add(logging.RequestID(id)).
		Add(logging.Actor(actor)).
		Add(logging.ErrorField(err)).
		Msg("operation rejected")
}

func requireApplicant(actor string) func(context.Context, *promotion.PullRequest) error {
	return func(_ context.Context, current *promotion.PullRequest) error {
		if current.Applicant != actor {
			return forbiddenApplicant(actor)
		}
		return nil
	}
}

func forbiddenApplicant(actor string) error {
	return fmt.Errorf("%w: %s is not the applicant", promotion.ErrForbidden, actor)
}
