package domain

import "time"

// ChunkAction is one row of chunks.yaml.
type ChunkAction string

const (
	ChunkActionStart ChunkAction = "start"
	ChunkActionEnd   ChunkAction = "end"
)

// ChunkEntry is one (action, sequence, datetime, path) tuple written to
// chunks.yaml.
type ChunkEntry struct {
	Action   ChunkAction
	Sequence int64
	Datetime time.Time
	Path     string
}

// ChunkRow is one (sequence, duration, datetime, path) tuple written into
// a single chunk's own segment-list file.
type ChunkRow struct {
	Sequence int64
	Duration float64
	Datetime time.Time
	Path     string
}

// ChunkNotification is the payload POSTed to the metadata sink once a
// chunk closes. Metadata fields are flattened alongside the fixed fields
// in the JSON wire form; see Payload.
type ChunkNotification struct {
	DeliveryID           string
	FeedID               FeedID
	Metadata             map[string]interface{}
	ChunkRelativeURL     string
	PrevChunkRelativeURL *string
	NextChunkRelativeURL *string
}

// Payload flattens Metadata alongside the notification's fixed fields into
// a single map, matching spec.md §4.6/§6's
// "{metadata_fields..., chunk_relative_url, prev_chunk_relative_url,
// next_chunk_relative_url}" wire shape.
func (n *ChunkNotification) Payload() map[string]interface{} {
	out := make(map[string]interface{}, len(n.Metadata)+5)
	for k, v := range n.Metadata {
		out[k] = v
	}
	out["delivery_id"] = n.DeliveryID
	out["feed_id"] = string(n.FeedID)
	out["chunk_relative_url"] = n.ChunkRelativeURL
	out["prev_chunk_relative_url"] = n.PrevChunkRelativeURL
	out["next_chunk_relative_url"] = n.NextChunkRelativeURL
	return out
}
