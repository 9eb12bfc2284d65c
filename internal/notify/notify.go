// Package notify delivers user notifications to the inbox table and,
// optionally, to a Kafka topic.
package notify

import "context"

// Kind classifies a notification.
type Kind string

// Kind constants for group lifecycle and account events.
const (
	KindGroupUpdate    Kind = "GROUP_UPDATE"
	KindGroupSuccess   Kind = "GROUP_SUCCESS"
	KindGroupFailed    Kind = "GROUP_FAILED"
	KindGroupReminder  Kind = "GROUP_REMINDER"
	KindGroupCancelled Kind = "GROUP_CANCELLED"
	KindGroupCompleted Kind = "GROUP_COMPLETED"
	KindDepositRefund  Kind = "DEPOSIT_REFUND"
	KindOTP            Kind = "OTP"
)

// Message is one notification for one user.
type Message struct {
	UserID uint64         `json:"userId"`
	Kind   Kind           `json:"kind"`
	Title  string         `json:"title"`
	Body   string         `json:"message"`
	Data   map[string]any `json:"data,omitempty"`
}

// Notifier delivers a message. Implementations may block; callers that must
// not fail on delivery use a Dispatcher.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}
