// Package metrics records payment and generation events.
package metrics

import "time"

const (
	EventPaymentCheck = "payment_check"
	EventPaymentWait  = "payment_wait"
	EventGeneration   = "generation"
)

// Recorder receives events keyed by name with a network and an outcome label.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Labels builds the label set every recorder understands.
func Labels(network, outcome string) map[string]string {
	return map[string]string{"network": network, "outcome": outcome}
}
