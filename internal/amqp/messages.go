package amqp

import (
	"encoding/json"
	"time"
)

// BillSyncMessage asks the export worker to push one bill to the external
// sheet. It carries only the bill id; the worker loads the current row from
// the database so a stale message never exports stale data.
type BillSyncMessage struct {
	BillID    int64     `json:"bill_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBillSyncMessage(billID int64) *BillSyncMessage {
	return &BillSyncMessage{
		BillID:    billID,
		Timestamp: time.Now(),
	}
}

func (m *BillSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func BillSyncMessageFromJSON(data []byte) (*BillSyncMessage, error) {
	var msg BillSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
