package domain

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is owned by the licensing application; this service reads it and
// maintains the notification summary fields.
type User struct {
	UserID                string     `json:"id" dynamodbav:"user_id"`
	Email                 string     `json:"email" dynamodbav:"email"`
	Phone                 *string    `json:"phone" dynamodbav:"phone"`
	FirstName             string     `json:"first_name" dynamodbav:"first_name"`
	LastName              string     `json:"last_name" dynamodbav:"last_name"`
	Role                  string     `json:"role" dynamodbav:"role"`
	NotificationCount     int        `json:"notification_count" dynamodbav:"notification_count"`
	MinDaysExpires        int        `json:"min_days_expires" dynamodbav:"min_days_expires"`
	NotificationsSyncedAt *time.Time `json:"notifications_synced_at,omitempty" dynamodbav:"notifications_synced_at"`
	CreatedAt             time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt             time.Time  `json:"updated" dynamodbav:"updated_at"`
}

// DisplayName returns the user's full name, falling back to the email.
func (u *User) DisplayName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Email
	}
	return name
}
