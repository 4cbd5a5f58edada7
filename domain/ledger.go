package domain

import (
	"time"
)

// UserInfo identifies the sender of a balance-changing operation.
// ID is the transport identity after suffix cleanup, Name the display name.
type UserInfo struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// HistoryRecord is one immutable entry of the per-group operation history.
// Change is always NewValue - OldValue.
type HistoryRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
	OldValue  float64   `json:"oldValue"`
	NewValue  float64   `json:"newValue"`
	Change    float64   `json:"change"`
	User      *UserInfo `json:"user"`
}

type Statistics struct {
	TotalOperations int            `json:"totalOperations"`
	LastOperation   *HistoryRecord `json:"lastOperation"`
	CreatedDate     time.Time      `json:"createdDate"`
}

// GroupLedger holds the running balance of one chat group.
// Invariant: once History is non-empty, Capital equals the NewValue of the
// last record; an empty history implies Capital == 0.
type GroupLedger struct {
	Capital    float64         `json:"capital"`
	History    []HistoryRecord `json:"history"`
	Statistics Statistics      `json:"statistics"`
}

func NewGroupLedger(now time.Time) GroupLedger {
	return GroupLedger{
		Capital: 0,
		History: []HistoryRecord{},
		Statistics: Statistics{
			TotalOperations: 0,
			LastOperation:   nil,
			CreatedDate:     now,
		},
	}
}
