package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/license-notifications/internal/domain"
	"github.com/license-notifications/internal/pkg/id"
	"github.com/license-notifications/internal/pkg/validate"
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldDaysExpires = "days_expires"
	fieldMessage     = "message"
)

type Service interface {
	Create(ctx context.Context, actorID, licenseeID string, req domain.CreateNotificationRequest) (*domain.Notification, error)
	List(ctx context.Context, actorID, licenseeID string) ([]domain.NotificationSummary, error)
	Get(ctx context.Context, actorID, notificationID string) (*domain.Notification, error)
	Update(ctx context.Context, actorID, notificationID string, req domain.UpdateNotificationRequest) (*domain.Notification, error)
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

type notificationStore interface {
	Put(ctx context.Context, n *domain.Notification) error
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	ListByOwnerAndLicensee(ctx context.Context, ownerID, licenseeID string) ([]domain.Notification, error)
	IncrementCounter(ctx context.Context, notificationID, ownerID string) (*domain.Notification, error)
	UpdateOwned(ctx context.Context, notificationID, ownerID string, updates map[string]interface{}) (*domain.Notification, error)
}

type taskEnqueuer interface {
	Enqueue(ctx context.Context, name string, args map[string]string) (*domain.Task, error)
}

type service struct {
	users          userStore
	repo           notificationStore
	tasks          taskEnqueuer
	eagerReconcile bool
	now            func() time.Time
}

type ServiceDeps struct {
	UserRepo         userStore
	NotificationRepo notificationStore
	Dispatcher       taskEnqueuer
	// EagerReconcile enqueues the related-objects task before the update is
	// checked, so it fires even when the update is rejected.
	EagerReconcile bool
}

func NewService(deps ServiceDeps) Service {
	return &service{
		users:          deps.UserRepo,
		repo:           deps.NotificationRepo,
		tasks:          deps.Dispatcher,
		eagerReconcile: deps.EagerReconcile,
		now:            time.Now,
	}
}

func (s *service) Create(ctx context.Context, actorID, licenseeID string, req domain.CreateNotificationRequest) (*domain.Notification, error) {
	licensee, err := s.licensee(ctx, licenseeID)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	n := &domain.Notification{
		NotificationID: id.New(),
		SubscriberID:   actorID,
		LicenseUserID:  licensee.UserID,
		UserID:         actorID,
		DaysExpires:    req.DaysExpires,
		Message:        req.Message,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Put(ctx, n); err != nil {
		return nil, fmt.Errorf("save notification: %w", err)
	}
	s.enqueue(ctx, domain.TaskSendLicenseeEmail, map[string]string{
		domain.ArgLicenseeID:     licensee.UserID,
		domain.ArgNotificationID: n.NotificationID,
	})
	return n, nil
}

func (s *service) List(ctx context.Context, actorID, licenseeID string) ([]domain.NotificationSummary, error) {
	licensee, err := s.licensee(ctx, licenseeID)
	if err != nil {
		return nil, err
	}
	notifications, err := s.repo.ListByOwnerAndLicensee(ctx, actorID, licensee.UserID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	out := make([]domain.NotificationSummary, 0, len(notifications))
	for i := range notifications {
		out = append(out, notifications[i].Summary())
	}
	return out, nil
}

// Get returns the actor's notification and counts the read. Every call
// increments the stored counter once, before the record is returned.
func (s *service) Get(ctx context.Context, actorID, notificationID string) (*domain.Notification, error) {
	return s.repo.IncrementCounter(ctx, notificationID, actorID)
}

func (s *service) Update(ctx context.Context, actorID, notificationID string, req domain.UpdateNotificationRequest) (*domain.Notification, error) {
	if s.eagerReconcile {
		s.enqueue(ctx, domain.TaskUpdateRelatedObjects, map[string]string{
			domain.ArgNotificationID: notificationID,
		})
	}

	current, err := s.repo.Get(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if current.UserID != actorID {
		return nil, fmt.Errorf("notification not found: %w", domain.ErrNotFound)
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if req.DaysExpires != nil {
		updates[fieldDaysExpires] = *req.DaysExpires
	}
	if req.Message != nil {
		updates[fieldMessage] = *req.Message
	}
	if len(updates) == 0 {
		return nil, domain.NewValidationError("non_field_errors", "no fields to update")
	}

	updated, err := s.repo.UpdateOwned(ctx, notificationID, actorID, updates)
	if err != nil {
		return nil, err
	}
	if !s.eagerReconcile {
		s.enqueue(ctx, domain.TaskUpdateRelatedObjects, map[string]string{
			domain.ArgNotificationID: updated.NotificationID,
			domain.ArgLicenseeID:     updated.LicenseUserID,
		})
	}
	return updated, nil
}

func (s *service) licensee(ctx context.Context, licenseeID string) (*domain.User, error) {
	u, err := s.users.Get(ctx, licenseeID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("licensee %s: %w", licenseeID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load licensee: %w", err)
	}
	return u, nil
}

// enqueue is fire-and-forget: a dispatch failure is logged and never fails the request.
func (s *service) enqueue(ctx context.Context, name string, args map[string]string) {
	t, err := s.tasks.Enqueue(ctx, name, args)
	if err != nil {
		slog.Warn("could not enqueue task", "task", name, "args", args, "err", err)
		return
	}
	slog.Debug("enqueued task", "task", name, "task_id", t.TaskID)
}
