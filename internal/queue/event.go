// Package queue carries email notifications over RabbitMQ.  Services
// publish to the outbox after their locks are released; a background
// consumer drains the queue into the configured mailer.
package queue

import "time"

// EmailQueue is the durable queue holding pending notifications.
const EmailQueue = "notification.email"

// EmailNotification is the JSON body of a queued email.
type EmailNotification struct {
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	QueuedAt time.Time `json:"queued_at"`
}
