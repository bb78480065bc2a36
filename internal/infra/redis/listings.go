package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/justin2061/drivefetch/internal/core/domain"
)

// ListingStore keeps folder listing snapshots in Redis so multiple
// processes can share a recent listing without hitting the API again.
type ListingStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewListingStore creates a listing snapshot store. A non-positive TTL
// defaults to 5 minutes, matching the in-process loader cache.
func NewListingStore(client *Client, ttl time.Duration) *ListingStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ListingStore{rdb: client.rdb, ttl: ttl}
}

// Key helpers
func listingKey(folderID string) string {
	return fmt.Sprintf("listing:%s", folderID)
}

func downloadedKey(fileID string) string {
	return fmt.Sprintf("downloaded:%s", fileID)
}

// listingSnapshot is the stored wire form of a folder listing.
type listingSnapshot struct {
	FolderID string         `json:"folder_id"`
	Items    []*domain.File `json:"items"`
	SavedAt  time.Time      `json:"saved_at"`
	Complete bool           `json:"complete"`
}

// SaveListing stores a folder's items with the store TTL. complete
// marks whether the listing reached the last page.
func (s *ListingStore) SaveListing(ctx context.Context, folderID string, items []*domain.File, complete bool) error {
	snap := listingSnapshot{
		FolderID: folderID,
		Items:    items,
		SavedAt:  time.Now(),
		Complete: complete,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal listing: %w", err)
	}

	if err := s.rdb.Set(ctx, listingKey(folderID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set listing: %w", err)
	}
	return nil
}

// GetListing returns the snapshot items for a folder. found is false
// when no snapshot exists or it has expired.
func (s *ListingStore) GetListing(ctx context.Context, folderID string) (items []*domain.File, complete bool, found bool, err error) {
	data, err := s.rdb.Get(ctx, listingKey(folderID)).Bytes()
	if err == redis.Nil {
		return nil, false, false, nil
	}
	if err != nil {
		return nil, false, false, fmt.Errorf("get failed: %w", err)
	}

	var snap listingSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false, false, fmt.Errorf("failed to unmarshal listing: %w", err)
	}
	return snap.Items, snap.Complete, true, nil
}

// DeleteListing drops a folder's snapshot.
func (s *ListingStore) DeleteListing(ctx context.Context, folderID string) error {
	return s.rdb.Del(ctx, listingKey(folderID)).Err()
}

// MarkDownloaded records that a file was fetched by a task, so repeat
// downloads within the TTL can be skipped.
func (s *ListingStore) MarkDownloaded(ctx context.Context, fileID, taskID string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, downloadedKey(fileID), taskID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to mark downloaded: %w", err)
	}
	return nil
}

// IsDownloaded reports whether a file has a fresh downloaded marker,
// returning the task that fetched it.
func (s *ListingStore) IsDownloaded(ctx context.Context, fileID string) (taskID string, ok bool, err error) {
	val, err := s.rdb.Get(ctx, downloadedKey(fileID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get failed: %w", err)
	}
	return val, true, nil
}

// ClearDownloaded removes a file's downloaded marker.
func (s *ListingStore) ClearDownloaded(ctx context.Context, fileID string) error {
	return s.rdb.Del(ctx, downloadedKey(fileID)).Err()
}
