package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shiftgrid/realtime/internal/model"
)

var (
	// ErrUnknownActionType is returned when a queued action carries a type
	// tag with no outbound call contract. Such an action can never be
	// delivered.
	ErrUnknownActionType = errors.New("api: unknown action type")

	// ErrMalformedPayload is returned when a queued action's payload does
	// not decode for its type tag. Retrying cannot help: the bytes are fixed
	// at enqueue time.
	ErrMalformedPayload = errors.New("api: malformed action payload")
)

// ProcessApproval submits an approval decision. Idempotent by approval ID.
func (c *Client) ProcessApproval(ctx context.Context, id model.Identity, p model.ApprovalPayload) error {
	if p.ApprovalID == "" {
		return fmt.Errorf("process approval: missing approval_id")
	}
	path := fmt.Sprintf("/%s/approval/%s/process", id.Role, p.ApprovalID)
	return c.post(ctx, path, p)
}

// AcknowledgeAlert acknowledges an alert. Idempotent by alert ID.
func (c *Client) AcknowledgeAlert(ctx context.Context, id model.Identity, p model.AlertAckPayload) error {
	if p.AlertID == "" {
		return fmt.Errorf("acknowledge alert: missing alert_id")
	}
	path := fmt.Sprintf("/%s/alert/%s/acknowledge", id.Role, p.AlertID)
	return c.post(ctx, path, p)
}

// SendAction maps a queued action's type tag to its outbound call contract
// and delivers it. Each tag maps to exactly one endpoint.
func (c *Client) SendAction(ctx context.Context, id model.Identity, action model.QueuedAction) error {
	switch action.Type {
	case model.ActionApprovalProcess:
		var p model.ApprovalPayload
		if err := json.Unmarshal(action.Payload, &p); err != nil {
			return fmt.Errorf("%w: approval: %v", ErrMalformedPayload, err)
		}
		return c.ProcessApproval(ctx, id, p)

	case model.ActionAlertAcknowledge:
		var p model.AlertAckPayload
		if err := json.Unmarshal(action.Payload, &p); err != nil {
			return fmt.Errorf("%w: alert ack: %v", ErrMalformedPayload, err)
		}
		return c.AcknowledgeAlert(ctx, id, p)

	default:
		return fmt.Errorf("%w: %s", ErrUnknownActionType, action.Type)
	}
}
