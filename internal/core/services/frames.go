package services

import (
	"bytes"
	"encoding/json"

	"messenger/internal/core/domain"
)

// decodeFrame parses a client frame. A non-empty problem is the text of the
// error frame to send back instead.
func decodeFrame(raw []byte) (in domain.InboundFrame, problem string) {
	if !json.Valid(raw) {
		return in, "Invalid JSON"
	}
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		return in, "Invalid message format"
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, "Invalid message format"
	}
	return in, ""
}
