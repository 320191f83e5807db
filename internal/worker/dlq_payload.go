package worker

import "encoding/json"

// originalMessage keeps a JSON payload as structured JSON in the DLQ record
// and falls back to the raw string otherwise.
func originalMessage(value []byte) any {
	if len(value) == 0 {
		return nil
	}
	if json.Valid(value) {
		return json.RawMessage(cloneBytes(value))
	}
	return string(value)
}
