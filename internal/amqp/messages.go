package amqp

import (
	"encoding/json"
	"time"
)

// Mutation kinds carried by ledger events.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// LedgerEventMessage announces a committed transaction mutation. It carries
// only identifiers; consumers re-read authoritative state from the ledger.
// OldAccountID differs from AccountID when an update moved the transaction
// between accounts, so consumers can recheck both balances.
type LedgerEventMessage struct {
	Op            string    `json:"op"`
	TransactionID int64     `json:"transaction_id"`
	OwnerID       int64     `json:"owner_id"`
	AccountID     int64     `json:"account_id"`
	OldAccountID  int64     `json:"old_account_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewLedgerEvent creates an event for a mutation touching a single account.
func NewLedgerEvent(op string, transactionID, ownerID, accountID int64) *LedgerEventMessage {
	return &LedgerEventMessage{
		Op:            op,
		TransactionID: transactionID,
		OwnerID:       ownerID,
		AccountID:     accountID,
		Timestamp:     time.Now(),
	}
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Accounts returns the distinct account IDs the event touches.
func (m *LedgerEventMessage) Accounts() []int64 {
	if m.OldAccountID != 0 && m.OldAccountID != m.AccountID {
		return []int64{m.OldAccountID, m.AccountID}
	}
	return []int64{m.AccountID}
}
