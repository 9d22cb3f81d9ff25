package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nucleus/replication-worker/internal/objectstore"
)

const archivePrefix = "states"

// Archive keeps a copy of a connection's state before it is overwritten by a
// backfill reset. A nil *Archive is valid and archives nothing.
type Archive struct {
	store  objectstore.ObjectStore
	bucket string
	now    func() time.Time
}

// NewArchive creates a state archive writing to bucket.
func NewArchive(store objectstore.ObjectStore, bucket string) *Archive {
	return &Archive{store: store, bucket: bucket, now: time.Now}
}

// ArchivePrior writes st as a snapshot and returns its reference.
func (a *Archive) ArchivePrior(ctx context.Context, connectionID string, jobID int64, st *State) (string, error) {
	if a == nil || a.store == nil || st == nil {
		return "", nil
	}
	if err := a.store.EnsureBucket(ctx, a.bucket); err != nil {
		return "", fmt.Errorf("failed to ensure archive bucket: %w", err)
	}

	snapshot, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}

	// Keys sort by time so History can return newest first.
	key := fmt.Sprintf("%s/%s/%s-job%d-%s.snapshot.json",
		archivePrefix, sanitizeKey(connectionID), a.now().UTC().Format("20060102T150405.000Z"), jobID, uuid.NewString()[:8])
	if err := a.store.PutObject(ctx, a.bucket, key, snapshot); err != nil {
		return "", fmt.Errorf("failed to write state snapshot: %w", err)
	}
	return fmt.Sprintf("minio://%s/%s", a.bucket, key), nil
}

// History lists archived snapshot keys for a connection, newest first.
func (a *Archive) History(ctx context.Context, connectionID string, limit int) ([]string, error) {
	if a == nil || a.store == nil {
		return nil, nil
	}
	keys, err := a.store.ListPrefix(ctx, a.bucket, fmt.Sprintf("%s/%s/", archivePrefix, sanitizeKey(connectionID)))
	if err != nil {
		if objectstore.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list state history: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

// Load reads an archived snapshot by key.
func (a *Archive) Load(ctx context.Context, key string) (*State, error) {
	if a == nil || a.store == nil {
		return nil, fmt.Errorf("state archive is not configured")
	}
	data, err := a.store.GetObject(ctx, a.bucket, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read state snapshot: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode state snapshot: %w", err)
	}
	return &st, nil
}

func sanitizeKey(key string) string {
	key = strings.ReplaceAll(key, "/", "_")
	return strings.ReplaceAll(key, " ", "_")
}
