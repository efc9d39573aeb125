package amqp

import (
	"encoding/json"
	"time"

	"extrato/internal/core"
)

// ArchiveRunMessage announces the outcome of an archival run. Consumers
// use it to skip redundant triggers and to react to failures; the full
// statement stays in the database.
type ArchiveRunMessage struct {
	Year          int               `json:"year"`
	Month         int               `json:"month"`
	Outcome       core.Outcome      `json:"outcome"`
	CorrelationID string            `json:"correlation_id"`
	Counts        core.RecordCounts `json:"counts"`
	Timestamp     time.Time         `json:"timestamp"`
}

func NewArchiveRunMessage(p core.Period, outcome core.Outcome, correlationID string, counts core.RecordCounts) *ArchiveRunMessage {
	return &ArchiveRunMessage{
		Year:          p.Year,
		Month:         p.Month,
		Outcome:       outcome,
		CorrelationID: correlationID,
		Counts:        counts,
		Timestamp:     time.Now(),
	}
}

func (m *ArchiveRunMessage) Period() core.Period {
	return core.Period{Year: m.Year, Month: m.Month}
}

func (m *ArchiveRunMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ArchiveRunMessageFromJSON(data []byte) (*ArchiveRunMessage, error) {
	var msg ArchiveRunMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
