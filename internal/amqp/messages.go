package amqp

import (
	"encoding/json"
	"time"

	"fintrack/internal/core"
)

// Refresh reasons carried by AggregateRefreshMessage
const (
	ReasonIngest     = "ingest"
	ReasonEdit       = "edit"
	ReasonReconcile  = "reconcile"
	ReasonHistorical = "historical"
)

// AggregateRefreshMessage announces that the aggregates of some months were
// rewritten. It carries only month keys and categories; the consumer reads
// the current aggregate from the store.
type AggregateRefreshMessage struct {
	BatchID   string              `json:"batch_id,omitempty"`
	Reason    string              `json:"reason"`
	Scopes    map[string][]string `json:"scopes"`
	Timestamp time.Time           `json:"timestamp"`
}

// NewAggregateRefreshMessage creates a refresh message for the given scopes
func NewAggregateRefreshMessage(batchID, reason string, scopes core.ScopeSet) *AggregateRefreshMessage {
	return &AggregateRefreshMessage{
		BatchID:   batchID,
		Reason:    reason,
		Scopes:    scopes.ToMap(),
		Timestamp: time.Now(),
	}
}

// ScopeSet converts the message scopes back into a core.ScopeSet
func (m *AggregateRefreshMessage) ScopeSet() core.ScopeSet {
	return core.ScopeSetFromMap(m.Scopes)
}

// Months returns the sorted month keys named by the message
func (m *AggregateRefreshMessage) Months() []string {
	return m.ScopeSet().Months()
}

// ToJSON converts the message to JSON bytes
func (m *AggregateRefreshMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// AggregateRefreshMessageFromJSON creates a message from JSON bytes
func AggregateRefreshMessageFromJSON(data []byte) (*AggregateRefreshMessage, error) {
	var msg AggregateRefreshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
