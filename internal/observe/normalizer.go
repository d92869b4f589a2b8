// Package observe normalizes events emitted by the external ledger
// program into flat structured records for downstream indexing. It is a
// read-only consumer; nothing here feeds back into the settlement
// pipeline.
package observe

// RawEvent is one decoded ledger event: the program-level event name plus
// its loosely typed payload.
type RawEvent struct {
	Name string         `json:"name"`
	Data map[string]any `json:"data"`
}

// Ledger event names.
const (
	EventStudentRegistered = "StudentRegistered"
	EventOnRampSettled     = "OnRampSettled"
	EventTransferExecuted  = "TransferExecuted"
	EventOffRampSettled    = "OffRampSettled"
	EventFraudFlagged      = "FraudFlagged"
	EventStudentFrozen     = "StudentFrozen"
)

// Normalize flattens a raw event into the indexing record shape. Every
// record carries type and timestamp (nil when the event has none); known
// event types get stable field names, unknown ones keep their payload
// under "data".
func Normalize(ev RawEvent) map[string]any {
	out := map[string]any{
		"type":      ev.Name,
		"timestamp": num(ev.Data, "timestamp"),
	}

	switch ev.Name {
	case EventStudentRegistered:
		out["owner"] = str(ev.Data, "owner")
		out["country"] = str(ev.Data, "country")
	case EventOnRampSettled:
		out["student"] = str(ev.Data, "student")
		out["amount"] = num(ev.Data, "amount")
		out["reference"] = str(ev.Data, "reference")
		out["flagged"] = false
	case EventTransferExecuted:
		out["sender"] = str(ev.Data, "sender")
		out["receiver"] = str(ev.Data, "receiver")
		out["amount"] = num(ev.Data, "amount")
		out["reference"] = str(ev.Data, "reference")
	case EventOffRampSettled:
		out["student"] = str(ev.Data, "student")
		out["amount"] = num(ev.Data, "amount")
		out["reference"] = str(ev.Data, "reference")
	case EventFraudFlagged:
		out["student"] = str(ev.Data, "student")
		out["amount"] = num(ev.Data, "amount")
		out["reference"] = str(ev.Data, "reference")
		out["score"] = num(ev.Data, "score")
		out["flagged"] = true
	case EventStudentFrozen:
		out["student"] = str(ev.Data, "student")
	default:
		out["data"] = ev.Data
	}
	return out
}

func str(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func num(data map[string]any, key string) *float64 {
	if v, ok := data[key].(float64); ok {
		return &v
	}
	return nil
}
