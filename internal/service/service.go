package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"pharmapos/backend/internal/cache"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/lock"
	"pharmapos/backend/internal/logging"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/validation"
	"pharmapos/backend/internal/xid"
)

var ErrForbidden = errors.New("admin role required")

// ValidationError carries per-field messages back to the caller. It matches
// store.ErrInvalidTransaction under errors.Is.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (%d field errors)", e.Message, len(e.Fields))
}

func (e *ValidationError) Unwrap() error {
	return store.ErrInvalidTransaction
}

func invalid(message string, field string, detail string) *ValidationError {
	return &ValidationError{Message: message, Fields: map[string]string{field: detail}}
}

func validate(message string, payload any) error {
	if fields := validation.Struct(payload); fields != nil {
		return &ValidationError{Message: message, Fields: fields}
	}
	return nil
}

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

func actorOrSystem(ctx context.Context) domain.Actor {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{Username: "system", Role: "system"}
	}
	return actor
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

type Options struct {
	// PhoneRegion is the default region for numbers typed without a country code.
	PhoneRegion       string
	LowStockThreshold int
	ExpiryCacheTTL    time.Duration
}

type Service struct {
	repo   store.Repository
	locker lock.Locker
	counts cache.ExpiryCountsCache
	opts   Options
	now    func() time.Time

	sales     *SaleManager
	returns   *ReturnManager
	purchases *PurchaseIntake
}

func New(repo store.Repository, locker lock.Locker, counts cache.ExpiryCountsCache, opts Options) *Service {
	if locker == nil {
		locker = lock.Noop{}
	}
	if counts == nil {
		counts = cache.NoopExpiryCountsCache{}
	}
	if opts.PhoneRegion == "" {
		opts.PhoneRegion = "PK"
	}
	if opts.LowStockThreshold < 1 {
		opts.LowStockThreshold = 10
	}
	if opts.ExpiryCacheTTL <= 0 {
		opts.ExpiryCacheTTL = 60 * time.Second
	}

	return &Service{
		repo:      repo,
		locker:    locker,
		counts:    counts,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
		sales:     &SaleManager{PhoneRegion: opts.PhoneRegion},
		returns:   &ReturnManager{},
		purchases: &PurchaseIntake{},
	}
}

// inTx runs fn inside one store transaction and commits when fn succeeds.
func (s *Service) inTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// logFailure records unexpected faults. Validation and lookup misses are the
// caller's problem and are not logged.
func logFailure(funcName string, detail string, data any, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidTransaction),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrBusy),
		errors.Is(err, ErrForbidden):
		return
	}
	logging.LogError("service", funcName, detail, data, err)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor := actorOrSystem(ctx)

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		logging.Warn("audit", "logAudit", "failed to write audit log", logrus.Fields{
			"action": action,
			"entity": entityType + "/" + entityID,
			"error":  err.Error(),
		})
	}
}

// RecordAudit writes an entry for mutations made outside the service, such
// as user administration.
func (s *Service) RecordAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	s.logAudit(ctx, action, entityType, entityID, detail)
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().Add(-24 * time.Hour)
	} else {
		parsed, err := parseDay(date)
		if err != nil {
			return nil, err
		}
		from = parsed
	}
	return s.repo.ListAuditLogs(ctx, from, from.Add(24*time.Hour), limit)
}

// day resolves an optional YYYY-MM-DD string to midnight UTC, defaulting to
// today.
func (s *Service) day(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return startOfDay(s.now()), nil
	}
	return parseDay(raw)
}

func parseDay(raw string) (time.Time, error) {
	parsed, err := time.Parse(domain.DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, invalid("invalid date", "date", "Must be a date formatted as "+domain.DateLayout)
	}
	return parsed.UTC(), nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
