package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Snapshot is a single node's observable state at the moment it was
// published, enough for a dashboard to poll without joining the gossip
// network itself.
type Snapshot struct {
	Self        string    `json:"self"`
	Variant     string    `json:"variant"`
	W           float64   `json:"w"`
	W2          float64   `json:"w2,omitempty"`
	Variance    float64   `json:"variance,omitempty"`
	Epoch       int       `json:"epoch,omitempty"`
	SentCount   uint32    `json:"sent_count"`
	ObservedAt  time.Time `json:"observed_at"`
}

const snapshotKeyPrefix = "gossipsim:snapshot:"

// SnapshotPublisher writes a node's Snapshot to Redis under a per-node key
// each time Publish is called; it has no timer of its own. Purely observational: nothing in the protocol core
// reads these keys back.
type SnapshotPublisher struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSnapshotPublisher connects to addr. The connection is checked with a
// short-lived Ping so misconfiguration fails fast at startup rather than
// on the first publish.
func NewSnapshotPublisher(addr string) (*SnapshotPublisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		ReadTimeout:  200 * time.Millisecond,
		WriteTimeout: 200 * time.Millisecond,
		DialTimeout:  2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("telemetry: redis connection failed: %w", err)
	}

	return &SnapshotPublisher{rdb: rdb, ttl: 30 * time.Second}, nil
}

// Publish writes snap under snapshotKeyPrefix+snap.Self with the
// publisher's TTL, so a node that stops updating eventually disappears
// from the dashboard instead of showing stale state forever.
func (p *SnapshotPublisher) Publish(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("telemetry: marshal snapshot: %w", err)
	}
	key := snapshotKeyPrefix + snap.Self
	if err := p.rdb.Set(ctx, key, data, p.ttl).Err(); err != nil {
		return fmt.Errorf("telemetry: publish snapshot: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (p *SnapshotPublisher) Close() error {
	return p.rdb.Close()
}
