// Package ingest runs the fetch-and-snapshot cycle: query the feed for
// a tracked listing, parse the returned records, and append a snapshot
// when the listing's content changed.
package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/asquitt/govtech-sniper/internal/db"
	"github.com/asquitt/govtech-sniper/internal/feed"
	"github.com/asquitt/govtech-sniper/internal/models"
)

// Tracked listings are re-queried over the full solicitation lifetime,
// not just the recent posting window.
const watchedListingDaysBack = 365

// Worker executes scan cycles. Safe for concurrent use across
// different listings; each scan is one logical unit of work.
type Worker struct {
	store  *db.Store
	client *feed.Client
}

func NewWorker(store *db.Store, client *feed.Client) *Worker {
	return &Worker{store: store, client: client}
}

// ScanResult reports one listing scan.
type ScanResult struct {
	NoticeID string           `json:"notice_id"`
	Created  bool             `json:"created"`
	Snapshot *models.Snapshot `json:"snapshot,omitempty"`
}

// ScanListing fetches the current feed state of one listing and
// records a snapshot if its content changed.
func (w *Worker) ScanListing(ctx context.Context, ownerID uuid.UUID, noticeID, keyword string) (*ScanResult, error) {
	records, err := w.client.Search(ctx, feed.SearchParams{
		NoticeID: noticeID,
		Keyword:  keyword,
		DaysBack: watchedListingDaysBack,
		Limit:    10,
	})
	if err != nil {
		return nil, fmt.Errorf("feed search for %s: %w", noticeID, err)
	}

	var match feed.RawListingRecord
	for _, rec := range records {
		if rec.NoticeID() == noticeID {
			match = rec
			break
		}
	}
	if match == nil {
		return nil, fmt.Errorf("listing %s: %w", noticeID, db.ErrListingNotFound)
	}

	opp, err := feed.ParseRecord(match)
	if err != nil {
		return nil, fmt.Errorf("parsing listing %s: %w", noticeID, err)
	}

	created, snap, err := w.store.RecordSnapshot(ctx, db.RecordSnapshotInput{
		NoticeID:           opp.NoticeID,
		SolicitationNumber: opp.SolicitationNumber,
		OwnerID:            ownerID,
		FetchedAt:          time.Now().UTC(),
		PostedDate:         opp.PostedDate,
		ResponseDeadline:   opp.ResponseDeadline,
		RawPayload:         match,
	})
	if err != nil {
		return nil, fmt.Errorf("recording snapshot for %s: %w", noticeID, err)
	}

	if created {
		log.Printf("[Ingest] New snapshot for %s (hash %.12s)", noticeID, snap.ContentHash)
	} else {
		log.Printf("[Ingest] Listing %s unchanged", noticeID)
	}

	return &ScanResult{NoticeID: noticeID, Created: created, Snapshot: snap}, nil
}

// ScanAll runs one scan cycle over every active watched listing.
// Per-listing failures are logged and skipped so one broken listing
// never stalls the cycle.
func (w *Worker) ScanAll(ctx context.Context) (scanned, changed, failed int) {
	watches, err := w.store.ListActiveWatches(ctx)
	if err != nil {
		log.Printf("[Ingest] Loading watches failed: %v", err)
		return 0, 0, 0
	}

	for _, watch := range watches {
		result, err := w.ScanListing(ctx, watch.OwnerID, watch.NoticeID, watch.Keyword)
		if err != nil {
			log.Printf("[Ingest] Scan failed for %s: %v", watch.NoticeID, err)
			failed++
			continue
		}
		scanned++
		if result.Created {
			changed++
		}
	}

	log.Printf("[Ingest] Scan cycle done: scanned=%d changed=%d failed=%d", scanned, changed, failed)
	return scanned, changed, failed
}
