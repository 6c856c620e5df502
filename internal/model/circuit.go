package model

import "time"

// CircuitState is the state of a circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// CircuitRecord is the persisted state of one named circuit breaker.
type CircuitRecord struct {
	State           CircuitState `json:"state"`
	FailureCount    int          `json:"failureCount"`
	LastFailureTime *time.Time   `json:"lastFailureTime"`
	LastSuccessTime *time.Time   `json:"lastSuccessTime"`
}

// NewCircuitRecord returns the record of a breaker that has never been used.
func NewCircuitRecord() *CircuitRecord {
	return &CircuitRecord{State: CircuitClosed}
}

// Clone returns a deep copy of r.
func (r *CircuitRecord) Clone() *CircuitRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.LastFailureTime != nil {
		t := *r.LastFailureTime
		c.LastFailureTime = &t
	}
	if r.LastSuccessTime != nil {
		t := *r.LastSuccessTime
		c.LastSuccessTime = &t
	}
	return &c
}
