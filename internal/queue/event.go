// Package queue defines message payloads exchanged over the message
// broker and the background consumer that dispatches notifications.
package queue

// OrderCompletedEvent is published when a purchase saga issues an
// order.  It carries enough information for the notification worker to
// build a confirmation message without querying the primary database.
type OrderCompletedEvent struct {
	OrderID       string   `json:"order_id"`
	OrderNumber   string   `json:"order_number"`
	BuyerID       string   `json:"buyer_id"`
	EventID       string   `json:"event_id"`
	TicketNumbers []string `json:"ticket_numbers"`
	TotalCents    int64    `json:"total_cents"`
	Currency      string   `json:"currency"`
	CompletedAt   string   `json:"completed_at"`
}

// OrderQueueName is the durable queue carrying order completion
// events.
const OrderQueueName = "order.completed"
