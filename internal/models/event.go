package models

import (
	"encoding/json"
	"time"
)

// NotificationType labels a lifecycle event pushed to the notification sink.
type NotificationType string

const (
	NotificationExchangeCreated   NotificationType = "EXCHANGE_CREATED"
	NotificationExchangeClaimed   NotificationType = "EXCHANGE_CLAIMED"
	NotificationExchangeDeclined  NotificationType = "EXCHANGE_DECLINED"
	NotificationExchangeApproved  NotificationType = "EXCHANGE_APPROVED"
	NotificationExchangeRejected  NotificationType = "EXCHANGE_REJECTED"
	NotificationExchangeCancelled NotificationType = "EXCHANGE_CANCELLED"
	NotificationExchangeCompleted NotificationType = "EXCHANGE_COMPLETED"
)

// NotificationEvent is the fire-and-forget record handed to the sink.
// Delivery is at-least-once; consumers must tolerate duplicates.
type NotificationEvent struct {
	Type      NotificationType `json:"type"`
	RequestID string           `json:"request_id"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   json.RawMessage  `json:"payload,omitempty"`
}
