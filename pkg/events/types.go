package events

import "encoding/json"

// Event name constants
const (
	TxState         = "tx.state"
	TxSkipped       = "tx.skipped"
	CalibrationLock = "calibration.lock"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// TxStateEvent is the typed payload for tx.state.
type TxStateEvent struct {
	From         string  `json:"from"`
	To           string  `json:"to"`
	DialHz       float64 `json:"dialHz,omitempty"`
	MissedWrites int     `json:"missedWrites"`
	Message      string  `json:"message,omitempty"`
	Ts           int64   `json:"ts"`
}

// TxSkippedEvent is published when a slot fires but nothing is sent.
type TxSkippedEvent struct {
	Reason string `json:"reason"`
	Ts     int64  `json:"ts"`
}

// CalibrationLockEvent is the typed payload for calibration.lock.
type CalibrationLockEvent struct {
	Locked            bool    `json:"locked"`
	CorrectionFactor  float64 `json:"correctionFactor"`
	FrequencyErrorPPM float64 `json:"frequencyErrorPpm"`
	Ts                int64   `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.TxStateEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.From, payload.To)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
