package naffles

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	perr "nafbridge/internal/platform/errors"
)

// SyncTaskStatus pushes a task status change to the platform
func (c *Client) SyncTaskStatus(ctx context.Context, taskID string, body TaskStatusSync) error {
	path := fmt.Sprintf("/api/social-tasks/%s/sync-status", url.PathEscape(taskID))
	_, err := c.Do(ctx, http.MethodPatch, path, body)
	return err
}

// SyncAllowlist pushes an allowlist change to the platform
func (c *Client) SyncAllowlist(ctx context.Context, allowlistID string, body AllowlistSync) error {
	path := fmt.Sprintf("/api/allowlists/%s/sync-update", url.PathEscape(allowlistID))
	_, err := c.Do(ctx, http.MethodPatch, path, body)
	return err
}

// SyncUserProgress pushes accumulated progress events for a user
func (c *Client) SyncUserProgress(ctx context.Context, userID string, body UserProgressSync) error {
	path := fmt.Sprintf("/api/users/%s/sync-progress", url.PathEscape(userID))
	_, err := c.Do(ctx, http.MethodPatch, path, body)
	return err
}

// Task fetches the authoritative task snapshot used during embed refresh
func (c *Client) Task(ctx context.Context, taskID string) (TaskSnapshot, error) {
	path := fmt.Sprintf("/api/social-tasks/%s", url.PathEscape(taskID))
	b, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return TaskSnapshot{}, err
	}
	var out TaskSnapshot
	if err := json.Unmarshal(b, &out); err != nil {
		return TaskSnapshot{}, perr.Wrapf(err, perr.ErrorCodeJSON, "naffles task decode failed")
	}
	return out, nil
}

// Allowlist fetches the authoritative allowlist snapshot used during embed refresh
func (c *Client) Allowlist(ctx context.Context, allowlistID string) (AllowlistSnapshot, error) {
	path := fmt.Sprintf("/api/allowlists/%s", url.PathEscape(allowlistID))
	b, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return AllowlistSnapshot{}, err
	}
	var out AllowlistSnapshot
	if err := json.Unmarshal(b, &out); err != nil {
		return AllowlistSnapshot{}, perr.Wrapf(err, perr.ErrorCodeJSON, "naffles allowlist decode failed")
	}
	return out, nil
}
