package domain

// DeliveryStatus is the result of handing a message to the chat target.
type DeliveryStatus string

const (
	DeliveryDelivered            DeliveryStatus = "delivered"
	DeliverySkippedNotConfigured DeliveryStatus = "skipped-not-configured"
	DeliverySkippedSuppressed    DeliveryStatus = "skipped-suppressed"
	DeliveryFailed               DeliveryStatus = "failed"
	DeliveryFailedAfterRetries   DeliveryStatus = "failed-after-retries"
)

// DeliveryOutcome is produced once per push message.
type DeliveryOutcome struct {
	Status   DeliveryStatus `json:"status"`
	Attempts int            `json:"attempts"`
	Err      error          `json:"-"`
}

// Failed reports whether delivery was attempted and did not succeed.
func (o DeliveryOutcome) Failed() bool {
	return o.Status == DeliveryFailed || o.Status == DeliveryFailedAfterRetries
}
