package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"

	"github.com/rhuss/routeway/pkg/debug"
	"github.com/rhuss/routeway/pkg/observability"
	"github.com/rhuss/routeway/pkg/storage"
)

const recordTimeout = 5 * time.Second

// record saves a completed exchange. Failures are logged and never reach
// the caller.
func (c *Client) record(ctx context.Context, t *storage.Transcript) {
	if c.recorder == nil {
		return
	}
	t.ID = storage.NewID()
	t.CreatedAt = time.Now().UTC()

	// Keep tenant and other values, drop the caller's cancellation.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := c.recorder.Save(ctx, t); err != nil {
		c.logger.Warn("recording transcript failed",
			slog.String("transcript_id", t.ID),
			slog.String("model", t.Model),
			slog.String("error", err.Error()),
		)
		return
	}
	debug.Log("storage", "transcript recorded", "id", t.ID, "stream", t.Stream)
}

// recordStreamUsage reports token usage carried by the last chunk that has
// a usage object, as sent when stream_options.include_usage is set.
func recordStreamUsage(model string, raw []json.RawMessage) {
	for i := len(raw) - 1; i >= 0; i-- {
		u := gjson.GetBytes(raw[i], "usage")
		if !u.IsObject() {
			continue
		}
		var reasoning *int
		if r := u.Get("reasoning_tokens"); r.Exists() {
			n := int(r.Int())
			reasoning = &n
		}
		observability.RecordUsage(model,
			int(u.Get("prompt_tokens").Int()),
			int(u.Get("completion_tokens").Int()),
			reasoning,
		)
		return
	}
}
