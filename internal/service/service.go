// Package service implements the registration core: quota-checked admission,
// the one-way check-in transition, duplicate cleanup and ledger
// reconciliation. Every operation authorizes its caller first and runs its
// checks before any write, so a rejection leaves the store untouched.
package service

import (
	"errors"
	"strings"
	"time"

	"github.com/fimlm/myidmji/internal/auth"
	"github.com/fimlm/myidmji/internal/model"
	"github.com/fimlm/myidmji/internal/repository"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// System is the principal used by maintenance commands and background jobs.
var System = &model.Principal{ID: uuid.Nil, Role: model.RoleAdmin, IsSuperuser: true}

// Service orchestrates the registration core on top of the store.
type Service struct {
	store    *repository.Store
	validate *validator.Validate
	now      func() time.Time

	reconcileWorkers int
}

type Option func(*Service)

// WithClock overrides the time source used for deadlines and check-in stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithReconcileWorkers bounds how many ledger rows are reconciled concurrently.
func WithReconcileWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.reconcileWorkers = n
		}
	}
}

// New constructs a Service with its dependencies.
func New(store *repository.Store, opts ...Option) *Service {
	s := &Service{
		store:            store,
		validate:         validator.New(validator.WithRequiredStructEnabled()),
		now:              time.Now,
		reconcileWorkers: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func authorize(caller *model.Principal, c auth.Capability) error {
	if err := auth.Require(caller, c); err != nil {
		return &Error{Kind: KindPermissionDenied, Code: ErrPermissionDenied.Code, Message: ErrPermissionDenied.Message, Err: err}
	}
	return nil
}

func (s *Service) validateStruct(v any) error {
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return invalid(errors.New(strings.ToLower(fe.Field()) + " failed " + fe.Tag() + " validation"))
		}
		return invalid(err)
	}
	return nil
}

// isNotFound reports whether a store error means the row is absent.
func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
