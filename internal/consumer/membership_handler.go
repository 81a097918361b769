package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"example.com/tags/internal/events"
)

// MembershipApplier receives membership changes observed on the bus.
type MembershipApplier interface {
	Apply(events.MembershipChanged)
}

// MembershipHandler keeps a local membership view converged with changes made through other
// instances.
type MembershipHandler struct {
	applier MembershipApplier
}

// NewMembershipHandler constructs a handler that forwards membership events to applier.
func NewMembershipHandler(applier MembershipApplier) *MembershipHandler {
	return &MembershipHandler{applier: applier}
}

// Handle applies participant.joined and participant.left events. Other event types are ignored.
func (h *MembershipHandler) Handle(_ context.Context, msg Message) error {
	switch msg.EventType {
	case events.TypeParticipantJoined, events.TypeParticipantLeft:
	default:
		return nil
	}

	var evt events.MembershipChanged
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return fmt.Errorf("decode %s: %w", msg.EventType, err)
	}
	// The event type is authoritative over the payload flag.
	evt.Joined = msg.EventType == events.TypeParticipantJoined
	h.applier.Apply(evt)
	return nil
}
