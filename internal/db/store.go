package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asquitt/govtech-sniper/internal/models"
	"github.com/asquitt/govtech-sniper/internal/snapshot"
)

var (
	// ErrListingNotFound means no snapshot exists for the notice id
	// visible to the caller.
	ErrListingNotFound = errors.New("listing not found")
	// ErrNotEnoughSnapshots means fewer than two snapshots exist, so
	// there is nothing to diff.
	ErrNotEnoughSnapshots = errors.New("not enough snapshots to diff")
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const snapshotCols = `id, notice_id, solicitation_number, linked_opportunity_id, owner_id,
	fetched_at, posted_date, response_deadline, content_hash, raw_payload, created_at`

func scanSnapshot(scan func(dest ...interface{}) error) (models.Snapshot, error) {
	var s models.Snapshot
	var payloadRaw []byte

	err := scan(
		&s.ID, &s.NoticeID, &s.SolicitationNumber, &s.LinkedOpportunityID, &s.OwnerID,
		&s.FetchedAt, &s.PostedDate, &s.ResponseDeadline, &s.ContentHash, &payloadRaw, &s.CreatedAt,
	)
	if err != nil {
		return s, err
	}

	if len(payloadRaw) > 0 {
		if err := json.Unmarshal(payloadRaw, &s.RawPayload); err != nil {
			return s, fmt.Errorf("decoding snapshot payload: %w", err)
		}
	}
	return s, nil
}

// RecordSnapshotInput is everything needed to persist one fetch result.
type RecordSnapshotInput struct {
	NoticeID            string
	SolicitationNumber  string
	LinkedOpportunityID *uuid.UUID
	OwnerID             uuid.UUID
	FetchedAt           time.Time
	PostedDate          *time.Time
	ResponseDeadline    *time.Time
	RawPayload          map[string]interface{}
}

// RecordSnapshot appends a snapshot only when the payload's content
// hash differs from the latest stored snapshot for the notice id.
// Re-ingesting an unchanged listing is a no-op that returns the
// existing latest snapshot with created=false.
//
// Two concurrent ingestions of the same listing can race past the hash
// check and both insert. The duplicate carries identical content and
// changes no downstream diff, so the race is tolerated rather than
// locked against.
func (s *Store) RecordSnapshot(ctx context.Context, in RecordSnapshotInput) (bool, *models.Snapshot, error) {
	if in.NoticeID == "" {
		return false, nil, fmt.Errorf("notice id is required")
	}
	if in.FetchedAt.IsZero() {
		in.FetchedAt = time.Now().UTC()
	}

	contentHash := snapshot.ContentHash(in.RawPayload)

	latest, err := s.LatestSnapshot(ctx, in.NoticeID)
	if err != nil && !errors.Is(err, ErrListingNotFound) {
		return false, nil, err
	}
	if latest != nil && latest.ContentHash == contentHash {
		return false, latest, nil
	}

	payloadJSON, err := json.Marshal(in.RawPayload)
	if err != nil {
		return false, nil, fmt.Errorf("encoding snapshot payload: %w", err)
	}

	sql := fmt.Sprintf(`
		INSERT INTO opportunity_snapshots
			(notice_id, solicitation_number, linked_opportunity_id, owner_id,
			 fetched_at, posted_date, response_deadline, content_hash, raw_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING %s
	`, snapshotCols)

	row := s.pool.QueryRow(ctx, sql,
		in.NoticeID, in.SolicitationNumber, in.LinkedOpportunityID, in.OwnerID,
		in.FetchedAt, in.PostedDate, in.ResponseDeadline, contentHash, payloadJSON,
	)

	created, err := scanSnapshot(row.Scan)
	if err != nil {
		return false, nil, fmt.Errorf("inserting snapshot: %w", err)
	}
	return true, &created, nil
}

// LatestSnapshot returns the most recent snapshot for a notice id.
func (s *Store) LatestSnapshot(ctx context.Context, noticeID string) (*models.Snapshot, error) {
	sql := fmt.Sprintf(`
		SELECT %s FROM opportunity_snapshots
		WHERE notice_id = $1
		ORDER BY fetched_at DESC, created_at DESC
		LIMIT 1
	`, snapshotCols)

	snap, err := scanSnapshot(s.pool.QueryRow(ctx, sql, noticeID).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest snapshot: %w", err)
	}
	return &snap, nil
}

// LatestSnapshots returns up to n snapshots for a notice id, newest
// first.
func (s *Store) LatestSnapshots(ctx context.Context, noticeID string, n int) ([]models.Snapshot, error) {
	if n <= 0 {
		n = 2
	}
	sql := fmt.Sprintf(`
		SELECT %s FROM opportunity_snapshots
		WHERE notice_id = $1
		ORDER BY fetched_at DESC, created_at DESC
		LIMIT $2
	`, snapshotCols)

	rows, err := s.pool.Query(ctx, sql, noticeID, n)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var snaps []models.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// GetSnapshot loads a snapshot by id.
func (s *Store) GetSnapshot(ctx context.Context, id uuid.UUID) (*models.Snapshot, error) {
	sql := fmt.Sprintf(`SELECT %s FROM opportunity_snapshots WHERE id = $1`, snapshotCols)

	snap, err := scanSnapshot(s.pool.QueryRow(ctx, sql, id).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	return &snap, nil
}

// ListSnapshots returns the snapshot log for a listing scoped to its
// owner, newest first, without raw payloads.
func (s *Store) ListSnapshots(ctx context.Context, noticeID string, ownerID uuid.UUID) ([]models.Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, notice_id, solicitation_number, linked_opportunity_id, owner_id,
		       fetched_at, posted_date, response_deadline, content_hash, created_at
		FROM opportunity_snapshots
		WHERE notice_id = $1 AND owner_id = $2
		ORDER BY fetched_at DESC, created_at DESC
	`, noticeID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var snaps []models.Snapshot
	for rows.Next() {
		var snap models.Snapshot
		if err := rows.Scan(
			&snap.ID, &snap.NoticeID, &snap.SolicitationNumber, &snap.LinkedOpportunityID, &snap.OwnerID,
			&snap.FetchedAt, &snap.PostedDate, &snap.ResponseDeadline, &snap.ContentHash, &snap.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// DiffWindow resolves the (from, to) snapshot pair for a diff request.
// With no explicit ids, the two most recent snapshots are used.
func (s *Store) DiffWindow(ctx context.Context, noticeID string, fromID, toID *uuid.UUID) (*models.Snapshot, *models.Snapshot, error) {
	if fromID != nil && toID != nil {
		from, err := s.GetSnapshot(ctx, *fromID)
		if err != nil {
			return nil, nil, err
		}
		to, err := s.GetSnapshot(ctx, *toID)
		if err != nil {
			return nil, nil, err
		}
		return from, to, nil
	}

	snaps, err := s.LatestSnapshots(ctx, noticeID, 2)
	if err != nil {
		return nil, nil, err
	}
	if len(snaps) < 2 {
		return nil, nil, ErrNotEnoughSnapshots
	}
	// snaps is newest first.
	return &snaps[1], &snaps[0], nil
}

// ListActiveWatches returns every active watched listing.
func (s *Store) ListActiveWatches(ctx context.Context) ([]models.WatchedListing, error) {
	return s.queryWatches(ctx, `
		SELECT id, owner_id, notice_id, keyword, active, created_at
		FROM watched_listings
		WHERE active = TRUE
		ORDER BY created_at
	`)
}

// ListWatchesByOwner returns an owner's watched listings.
func (s *Store) ListWatchesByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.WatchedListing, error) {
	return s.queryWatches(ctx, `
		SELECT id, owner_id, notice_id, keyword, active, created_at
		FROM watched_listings
		WHERE owner_id = $1
		ORDER BY created_at
	`, ownerID)
}

func (s *Store) queryWatches(ctx context.Context, sql string, args ...interface{}) ([]models.WatchedListing, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var watches []models.WatchedListing
	for rows.Next() {
		var w models.WatchedListing
		if err := rows.Scan(&w.ID, &w.OwnerID, &w.NoticeID, &w.Keyword, &w.Active, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		watches = append(watches, w)
	}
	return watches, rows.Err()
}

// AddWatch registers a listing for scheduled re-scans. Re-adding an
// existing watch reactivates it.
func (s *Store) AddWatch(ctx context.Context, ownerID uuid.UUID, noticeID, keyword string) (*models.WatchedListing, error) {
	var w models.WatchedListing
	err := s.pool.QueryRow(ctx, `
		INSERT INTO watched_listings (owner_id, notice_id, keyword)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id, notice_id)
		DO UPDATE SET active = TRUE, keyword = EXCLUDED.keyword
		RETURNING id, owner_id, notice_id, keyword, active, created_at
	`, ownerID, noticeID, keyword).Scan(&w.ID, &w.OwnerID, &w.NoticeID, &w.Keyword, &w.Active, &w.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("adding watch: %w", err)
	}
	return &w, nil
}

// RemoveWatch deactivates a watch without deleting its history.
func (s *Store) RemoveWatch(ctx context.Context, ownerID uuid.UUID, noticeID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE watched_listings SET active = FALSE
		WHERE owner_id = $1 AND notice_id = $2
	`, ownerID, noticeID)
	if err != nil {
		return fmt.Errorf("removing watch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrListingNotFound
	}
	return nil
}

// SectionsByProposal loads the read-only section records for impact
// analysis.
func (s *Store) SectionsByProposal(ctx context.Context, proposalID uuid.UUID) ([]models.ProposalSection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, proposal_id, section_number, title, status, content, requirement_id
		FROM proposal_sections
		WHERE proposal_id = $1
		ORDER BY section_number, id
	`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var sections []models.ProposalSection
	for rows.Next() {
		var sec models.ProposalSection
		if err := rows.Scan(&sec.ID, &sec.ProposalID, &sec.SectionNumber, &sec.Title, &sec.Status, &sec.Content, &sec.RequirementID); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

// RequirementsByProposal loads the compliance requirement texts keyed
// by requirement id.
func (s *Store) RequirementsByProposal(ctx context.Context, proposalID uuid.UUID) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, text FROM compliance_requirements WHERE proposal_id = $1
	`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	reqs := make(map[string]string)
	for rows.Next() {
		var id, text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		reqs[id] = text
	}
	return reqs, rows.Err()
}
