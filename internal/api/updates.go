package api

import (
	"context"
	"fmt"

	"github.com/shiftgrid/realtime/internal/model"
)

// FetchUpdates fetches pending events for an identity. The response is a
// JSON array of {type, payload} envelopes, empty when nothing is pending.
// Events must be dispatched in array order.
func (c *Client) FetchUpdates(ctx context.Context, id model.Identity) ([]model.Envelope, error) {
	path := fmt.Sprintf("/%s/%s/updates", id.Role, id.ID)

	var events []model.Envelope
	if err := c.get(ctx, path, nil, &events); err != nil {
		return nil, fmt.Errorf("fetch updates: %w", err)
	}

	return events, nil
}
