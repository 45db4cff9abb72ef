package client

import (
	"encoding/json"
	"fmt"
	"os"
)

// The local fallback: collections mirrored to disk as one JSON object with a
// fixed key per resource kind, the same layout the browser app keeps in
// local storage for unauthenticated use.

// SaveSnapshot writes every collection's current items to path.
func (c *Client) SaveSnapshot(path string) error {
	out := map[string]json.RawMessage{}
	for _, col := range c.collections() {
		key, raw, err := col.snapshot()
		if err != nil {
			return fmt.Errorf("snapshot %s: %w", key, err)
		}
		out[key] = raw
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadSnapshot seeds the caches from a snapshot file. Loaded collections
// are treated as fresh until a notification or failed mutation says
// otherwise.
func (c *Client) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var in map[string]json.RawMessage
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("bad snapshot file %s: %w", path, err)
	}
	for _, col := range c.collections() {
		key, _, _ := col.snapshot()
		raw, ok := in[key]
		if !ok {
			continue
		}
		if err := col.restore(raw); err != nil {
			return fmt.Errorf("restore %s: %w", key, err)
		}
	}
	return nil
}
