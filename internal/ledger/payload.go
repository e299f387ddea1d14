package ledger

import (
	"fmt"

	"github.com/ledgerdesk/ledgerdesk/internal/codec"
	"github.com/ledgerdesk/ledgerdesk/internal/domain"
)

// EncodePayload serializes an event payload with deterministic CBOR.
func EncodePayload(p domain.Payload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("encode payload: nil payload")
	}
	return codec.Marshal(p)
}

// DecodePayload turns stored bytes back into the payload type for kind.
func DecodePayload(kind domain.EventKind, data []byte) (domain.Payload, error) {
	switch kind {
	case domain.EventCreated:
		var p domain.CreatedPayload
		if err := codec.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return p, nil
	case domain.EventStatusChanged:
		var p domain.StatusChangedPayload
		if err := codec.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return p, nil
	case domain.EventAssigned:
		var p domain.AssignedPayload
		if err := codec.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return p, nil
	case domain.EventCommentAdded:
		var p domain.CommentAddedPayload
		if err := codec.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("decode payload: unknown event kind %q", kind)
	}
}
