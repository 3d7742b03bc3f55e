package domain

import "time"

// Notification is a license notice raised by a subscriber about a licensee.
// UserID is the owner scope used by list, detail and update; it is the
// acting user at creation time.
type Notification struct {
	NotificationID string    `json:"id" dynamodbav:"notification_id"`
	SubscriberID   string    `json:"subscriber" dynamodbav:"subscriber_id"`
	LicenseUserID  string    `json:"license_user" dynamodbav:"license_user_id"`
	UserID         string    `json:"user" dynamodbav:"user_id"`
	DaysExpires    int       `json:"days_expires" dynamodbav:"days_expires"`
	Message        string    `json:"message" dynamodbav:"message"`
	Counter        int       `json:"counter" dynamodbav:"counter"`
	CreatedAt      time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time `json:"updated" dynamodbav:"updated_at"`
}

// NotificationSummary is the public listing projection.
type NotificationSummary struct {
	NotificationID string `json:"id"`
	LicenseUserID  string `json:"license_user"`
	DaysExpires    int    `json:"days_expires"`
}

func (n *Notification) Summary() NotificationSummary {
	return NotificationSummary{
		NotificationID: n.NotificationID,
		LicenseUserID:  n.LicenseUserID,
		DaysExpires:    n.DaysExpires,
	}
}

type CreateNotificationRequest struct {
	DaysExpires int    `json:"days_expires" validate:"required,min=1,max=3650"`
	Message     string `json:"message" validate:"max=500"`

	// TypeErrors holds fields the body carried with the wrong JSON type,
	// keyed by JSON name. They are reported together with tag failures.
	TypeErrors map[string]string `json:"-" validate:"-"`
}

func (r CreateNotificationRequest) FieldTypeErrors() map[string]string { return r.TypeErrors }

type UpdateNotificationRequest struct {
	DaysExpires *int    `json:"days_expires" validate:"omitempty,min=1,max=3650"`
	Message     *string `json:"message" validate:"omitempty,max=500"`

	TypeErrors map[string]string `json:"-" validate:"-"`
}

func (r UpdateNotificationRequest) FieldTypeErrors() map[string]string { return r.TypeErrors }
