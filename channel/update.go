package channel

import "time"

// Update is one message delivered to a consumer's handle. Payload bytes are
// shared between consumers and must be treated as read-only.
type Update struct {
	Payload    []byte
	ReceivedAt time.Time
}
