// Package workflow holds the bodies of the deferred tasks: the licensee
// email sent after a notification is created, and the two-stage
// reconcile-then-notify-admins pipeline triggered by an update.
//
// Every body is safe to run more than once. Reconciliation recomputes state
// instead of incrementing it; admin notices may be delivered twice on retry.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/license-notifications/internal/application/dispatch"
	"github.com/license-notifications/internal/domain"
)

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	ListByRole(ctx context.Context, role string) ([]domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type notificationStore interface {
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	ListByLicensee(ctx context.Context, licenseeID string) ([]domain.Notification, error)
}

type taskEnqueuer interface {
	Enqueue(ctx context.Context, name string, args map[string]string) (*domain.Task, error)
}

type mailer interface {
	SendEmail(to, subject, body string) error
}

type alertPublisher interface {
	PublishAlert(ctx context.Context, subject, message string) error
}

type reportArchive interface {
	PutJSON(ctx context.Context, key string, v interface{}) (string, error)
}

type registrar interface {
	Register(name string, h dispatch.Handler)
}

// Deps wires the workflow. Alerts and Archive are optional.
type Deps struct {
	UserRepo         userStore
	NotificationRepo notificationStore
	Dispatcher       taskEnqueuer
	Mailer           mailer
	Alerts           alertPublisher
	Archive          reportArchive
}

type Workflow struct {
	users         userStore
	notifications notificationStore
	tasks         taskEnqueuer
	mailer        mailer
	alerts        alertPublisher
	archive       reportArchive
	now           func() time.Time
}

func New(deps Deps) *Workflow {
	return &Workflow{
		users:         deps.UserRepo,
		notifications: deps.NotificationRepo,
		tasks:         deps.Dispatcher,
		mailer:        deps.Mailer,
		alerts:        deps.Alerts,
		archive:       deps.Archive,
		now:           time.Now,
	}
}

// Register binds every task body to its name on the worker.
func (w *Workflow) Register(r registrar) {
	r.Register(domain.TaskSendLicenseeEmail, w.SendLicenseeEmail)
	r.Register(domain.TaskUpdateRelatedObjects, w.UpdateRelatedObjects)
	r.Register(domain.TaskNotifyAdmins, w.NotifyAdmins)
}

// SendLicenseeEmail tells the licensee that a notification about them was created.
func (w *Workflow) SendLicenseeEmail(ctx context.Context, t *domain.Task) (string, error) {
	licenseeID := t.Args[domain.ArgLicenseeID]
	if licenseeID == "" {
		return "", fmt.Errorf("missing %s: %w", domain.ArgLicenseeID, domain.ErrBadRequest)
	}
	licensee, err := w.users.Get(ctx, licenseeID)
	if errors.Is(err, domain.ErrNotFound) {
		return "licensee no longer exists, skipped", nil
	}
	if err != nil {
		return "", err
	}
	if licensee.Email == "" {
		return "licensee has no email, skipped", nil
	}

	body := fmt.Sprintf("Hello %s,\n\nA new notification about your license has been registered.\n", licensee.DisplayName())
	if nid := t.Args[domain.ArgNotificationID]; nid != "" {
		if n, err := w.notifications.Get(ctx, nid); err == nil {
			body += fmt.Sprintf("It expires in %d days.\n", n.DaysExpires)
			if n.Message != "" {
				body += "\n" + n.Message + "\n"
			}
		}
	}
	if err := w.mailer.SendEmail(licensee.Email, "New license notification", body); err != nil {
		return "", fmt.Errorf("send email to %s: %w", licensee.UserID, err)
	}
	return "sent to " + licensee.Email, nil
}

// UpdateRelatedObjects recomputes the licensee's notification summary and
// then chains NotifyAdmins. The summary is rebuilt from all of the
// licensee's notifications, so a re-run converges on the same values.
func (w *Workflow) UpdateRelatedObjects(ctx context.Context, t *domain.Task) (string, error) {
	notificationID := t.Args[domain.ArgNotificationID]
	licenseeID := t.Args[domain.ArgLicenseeID]

	if licenseeID == "" && notificationID != "" {
		n, err := w.notifications.Get(ctx, notificationID)
		switch {
		case err == nil:
			licenseeID = n.LicenseUserID
		case !errors.Is(err, domain.ErrNotFound):
			return "", err
		}
	}

	result := "nothing to reconcile"
	if licenseeID != "" {
		var err error
		result, err = w.reconcileLicensee(ctx, licenseeID)
		if err != nil {
			return "", err
		}
	}

	next := map[string]string{domain.ArgNotificationID: notificationID}
	if licenseeID != "" {
		next[domain.ArgLicenseeID] = licenseeID
	}
	if _, err := w.tasks.Enqueue(ctx, domain.TaskNotifyAdmins, next); err != nil {
		return "", fmt.Errorf("chain %s: %w", domain.TaskNotifyAdmins, err)
	}
	return result, nil
}

func (w *Workflow) reconcileLicensee(ctx context.Context, licenseeID string) (string, error) {
	notifications, err := w.notifications.ListByLicensee(ctx, licenseeID)
	if err != nil {
		return "", fmt.Errorf("list licensee notifications: %w", err)
	}
	minDays := 0
	for i, n := range notifications {
		if i == 0 || n.DaysExpires < minDays {
			minDays = n.DaysExpires
		}
	}
	err = w.users.Update(ctx, licenseeID, map[string]interface{}{
		"notification_count":      len(notifications),
		"min_days_expires":        minDays,
		"notifications_synced_at": w.now().UTC(),
	})
	if errors.Is(err, domain.ErrNotFound) {
		return "licensee no longer exists, skipped", nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("reconciled licensee %s: %d notifications", licenseeID, len(notifications)), nil
}

// AdminReport is the archived outcome of one NotifyAdmins run.
type AdminReport struct {
	TaskID         string    `json:"task_id"`
	NotificationID string    `json:"notification_id"`
	LicenseeID     string    `json:"licensee_id"`
	Recipients     []string  `json:"recipients"`
	Failed         []string  `json:"failed,omitempty"`
	SentAt         time.Time `json:"sent_at"`
}

// NotifyAdmins emails every admin about the change, publishes one alert and
// archives a report. It fails only when no admin could be reached.
func (w *Workflow) NotifyAdmins(ctx context.Context, t *domain.Task) (string, error) {
	admins, err := w.users.ListByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return "", fmt.Errorf("list admins: %w", err)
	}

	report := AdminReport{
		TaskID:         t.TaskID,
		NotificationID: t.Args[domain.ArgNotificationID],
		LicenseeID:     t.Args[domain.ArgLicenseeID],
		SentAt:         w.now().UTC(),
	}
	subject := "License notification updated"
	body := fmt.Sprintf("Notification %s for licensee %s was updated and related records were reconciled.\n",
		orUnknown(report.NotificationID), orUnknown(report.LicenseeID))

	for _, admin := range admins {
		if admin.Email == "" {
			continue
		}
		if err := w.mailer.SendEmail(admin.Email, subject, body); err != nil {
			slog.Warn("admin email failed", "admin", admin.UserID, "err", err)
			report.Failed = append(report.Failed, admin.UserID)
			continue
		}
		report.Recipients = append(report.Recipients, admin.UserID)
	}
	if len(report.Recipients) == 0 && len(report.Failed) > 0 {
		return "", fmt.Errorf("could not reach any of %d admins", len(report.Failed))
	}

	if w.alerts != nil {
		if err := w.alerts.PublishAlert(ctx, subject, body); err != nil {
			slog.Warn("admin alert publish failed", "err", err)
		}
	}
	if w.archive != nil {
		if _, err := w.archive.PutJSON(ctx, "admin-reports/"+t.TaskID+".json", report); err != nil {
			slog.Warn("admin report archive failed", "task_id", t.TaskID, "err", err)
		}
	}
	return fmt.Sprintf("notified %d admins", len(report.Recipients)), nil
}

func orUnknown(s string) string {
	if s == "" {
		return "(unknown)"
	}
	return s
}
