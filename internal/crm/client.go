package crm

import (
	"context"
	"errors"
)

// ErrUnreachable wraps transport-level failures (DNS, refused connection,
// timeout) so callers can distinguish "backend down" from an API rejection.
var ErrUnreachable = errors.New("crm: backend unreachable")

// Client is the Call API surface the orchestrator depends on. Exactly one
// request per call may be in flight at a time; that discipline is enforced
// by the turn coordinator, not here.
type Client interface {
	// StartCall registers a new call and returns the record with its
	// backend-assigned ID plus the opening greeting.
	StartCall(ctx context.Context, params StartParams) (StartResult, error)

	// SendMessage forwards one customer utterance and returns the agent's
	// reply. Once the call is in takeover it fails with an APIError whose
	// Takeover flag is set.
	SendMessage(ctx context.Context, callID, text string) (Reply, error)

	// SendHumanMessage records a human agent's line during takeover. The
	// reply carries the updated record; Text is empty because nothing is
	// synthesized for human speech.
	SendHumanMessage(ctx context.Context, callID, text string) (Reply, error)

	// RequestTakeover hands the call to a human agent.
	RequestTakeover(ctx context.Context, callID, reason string) (CallRecord, error)

	// EndCall closes the record with the given outcome and returns its
	// final state.
	EndCall(ctx context.Context, callID, outcome string) (CallRecord, error)
}
