package api

import (
	"context"
	"fmt"

	"github.com/upvigil/upvigil/internal/models"
)

// Device fetches the device record for a view token, an edit token, or a
// public device id. View tokens and ids go through the view endpoint; edit
// tokens through the edit endpoint, which returns the same record with the
// management fields included.
func (c *Client) Device(ctx context.Context, resource string, edit bool) (*models.Device, error) {
	path := "/u/v/" + resource
	if edit {
		path = "/u/e/" + resource
	}

	var device models.Device
	if err := c.Get(ctx, path, &device); err != nil {
		return nil, err
	}
	if err := device.Err(); err != nil {
		return nil, err
	}
	return &device, nil
}

// Listing fetches the public device index.
func (c *Client) Listing(ctx context.Context) (*models.Listing, error) {
	var listing models.Listing
	if err := c.Get(ctx, "/u/listing", &listing); err != nil {
		return nil, err
	}
	if err := listing.Err(); err != nil {
		return nil, err
	}
	return &listing, nil
}

// ToggleEvent flips an event's crossed flag, which moves its downtime
// between the raw-only and both uptime denominators server-side.
func (c *Client) ToggleEvent(ctx context.Context, editToken string, eventID int) error {
	var env models.Envelope
	err := c.Post(ctx, "/u/toogle_event/"+editToken, map[string]int{"id": eventID}, &env)
	if err != nil {
		return err
	}
	if err := env.Err(); err != nil {
		return err
	}
	if !env.OK {
		return fmt.Errorf("toggle event %d: not acknowledged", eventID)
	}
	return nil
}

// AddComment attaches a comment to an event.
func (c *Client) AddComment(ctx context.Context, editToken string, eventID int, comment string) error {
	var env models.Envelope
	err := c.Post(ctx, "/u/add_comment/"+editToken, map[string]any{
		"id":      eventID,
		"comment": comment,
	}, &env)
	if err != nil {
		return err
	}
	if err := env.Err(); err != nil {
		return err
	}
	if !env.OK {
		return fmt.Errorf("add comment to event %d: not acknowledged", eventID)
	}
	return nil
}
