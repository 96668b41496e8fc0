// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Connection state and reconnect attempts
//   - Outgoing (pending) and incoming queue depths
//   - Messages sent, queued for retry, received and dispatched to hooks
//   - Archive batch inserts and failures
package metrics
