package parcel

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"parcelwatch/internal/config"
)

// Store manages parcel persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the parcel database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Upsert merges one classified observation into the store. A novel tracking
// number creates a new parcel (status new); a known one accumulates the
// source message ID and keeps the highest-ranked classification. Reports
// whether a new parcel was created.
func (s *Store) Upsert(ctx context.Context, cls Classification, now time.Time) (*Parcel, bool, error) {
	tracking := NormalizeTrackingNumber(cls.TrackingNumber)
	if tracking == "" {
		return nil, false, errors.New("tracking number is empty")
	}
	if strings.TrimSpace(cls.MessageID) == "" {
		return nil, false, errors.New("message id is empty")
	}
	cls.TrackingNumber = tracking

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := getByTrackingNumber(ctx, tx, tracking)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	timestamp := now.UTC().Format(time.RFC3339Nano)

	if existing == nil {
		messageIDs, err := json.Marshal([]string{cls.MessageID})
		if err != nil {
			return nil, false, fmt.Errorf("marshal message ids: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO parcels (
                tracking_number, courier, company, status, confidence,
                classified_at, classified_message_id, consecutive_failures,
                first_seen_at, updated_at, source_message_ids
            ) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
			tracking,
			cls.Courier,
			cls.Company,
			StatusNew,
			cls.Confidence,
			cls.ObservedAt.UTC().Format(time.RFC3339Nano),
			cls.MessageID,
			timestamp,
			timestamp,
			string(messageIDs),
		)
		if err != nil {
			return nil, false, fmt.Errorf("insert parcel: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit upsert: %w", err)
		}
		created, err := s.GetByTrackingNumber(ctx, tracking)
		return created, true, err
	}

	changed := false
	if !existing.HasMessage(cls.MessageID) {
		existing.SourceMessageIDs = append(existing.SourceMessageIDs, cls.MessageID)
		changed = true
	}

	if cls.Outranks(existing.Classification()) {
		// A resolved courier never regresses to unknown, even when the new
		// classification otherwise wins.
		if cls.Courier != CourierUnknown || existing.Courier == CourierUnknown {
			existing.Courier = cls.Courier
			existing.Company = cls.Company
			existing.Confidence = cls.Confidence
			existing.ClassifiedAt = cls.ObservedAt
			existing.ClassifiedMessageID = cls.MessageID
			changed = true
		}
	}

	if !changed {
		return existing, false, nil
	}

	messageIDs, err := json.Marshal(existing.SourceMessageIDs)
	if err != nil {
		return nil, false, fmt.Errorf("marshal message ids: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE parcels
         SET courier = ?, company = ?, confidence = ?, classified_at = ?,
             classified_message_id = ?, source_message_ids = ?, updated_at = ?
         WHERE tracking_number = ?`,
		existing.Courier,
		existing.Company,
		existing.Confidence,
		existing.ClassifiedAt.UTC().Format(time.RFC3339Nano),
		existing.ClassifiedMessageID,
		string(messageIDs),
		timestamp,
		tracking,
	)
	if err != nil {
		return nil, false, fmt.Errorf("merge parcel: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit upsert: %w", err)
	}
	merged, err := s.GetByTrackingNumber(ctx, tracking)
	return merged, false, err
}

// RecordSuccess applies a successful status fetch. The check and success
// timestamps advance and the failure counter resets even when the reported
// status is rejected as a backward transition, in which case
// ErrBackwardTransition is returned after the commit.
func (s *Store) RecordSuccess(ctx context.Context, trackingNumber string, status Status, eta *time.Time, now time.Time) error {
	tracking := NormalizeTrackingNumber(trackingNumber)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := getByTrackingNumber(ctx, tx, tracking)
	if err != nil {
		return err
	}

	allowed := CanTransition(existing.Status, status)
	timestamp := now.UTC().Format(time.RFC3339Nano)

	if allowed {
		_, err = tx.ExecContext(ctx,
			`UPDATE parcels
             SET status = ?, eta = ?, last_checked_at = ?, last_success_at = ?,
                 consecutive_failures = 0, updated_at = ?
             WHERE tracking_number = ?`,
			status,
			nullableTime(eta),
			timestamp,
			timestamp,
			timestamp,
			tracking,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE parcels
             SET last_checked_at = ?, last_success_at = ?,
                 consecutive_failures = 0, updated_at = ?
             WHERE tracking_number = ?`,
			timestamp,
			timestamp,
			timestamp,
			tracking,
		)
	}
	if err != nil {
		return fmt.Errorf("record success: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record: %w", err)
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s for %s", ErrBackwardTransition, existing.Status, status, tracking)
	}
	return nil
}

// RecordFailure notes a failed status fetch: the check timestamp advances
// and the failure counter increments. Status and ETA keep their last known
// values.
func (s *Store) RecordFailure(ctx context.Context, trackingNumber string, now time.Time) error {
	tracking := NormalizeTrackingNumber(trackingNumber)
	timestamp := now.UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(ctx,
		`UPDATE parcels
         SET last_checked_at = ?, consecutive_failures = consecutive_failures + 1,
             updated_at = ?
         WHERE tracking_number = ?`,
		timestamp,
		timestamp,
		tracking,
	)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, tracking)
	}
	return nil
}

// Touch marks a parcel as checked without a status outcome. Used when the
// fetch was skipped by design, such as a courier with no provider.
func (s *Store) Touch(ctx context.Context, trackingNumber string, now time.Time) error {
	tracking := NormalizeTrackingNumber(trackingNumber)
	timestamp := now.UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(ctx,
		`UPDATE parcels SET last_checked_at = ?, updated_at = ? WHERE tracking_number = ?`,
		timestamp,
		timestamp,
		tracking,
	)
	if err != nil {
		return fmt.Errorf("touch parcel: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, tracking)
	}
	return nil
}

// GetByTrackingNumber fetches one parcel.
func (s *Store) GetByTrackingNumber(ctx context.Context, trackingNumber string) (*Parcel, error) {
	return getByTrackingNumber(ctx, s.db, NormalizeTrackingNumber(trackingNumber))
}

// ListDueForRefresh returns parcels whose status is stale. Delivered
// parcels use the separate (longer) cadence; zero disables re-checking
// them entirely.
func (s *Store) ListDueForRefresh(ctx context.Context, staleAfter, deliveredEvery time.Duration, now time.Time) ([]*Parcel, error) {
	cutoff := now.Add(-staleAfter).UTC().Format(time.RFC3339Nano)

	query := `SELECT ` + parcelColumns + ` FROM parcels
        WHERE status != ? AND (last_checked_at IS NULL OR last_checked_at < ?)`
	args := []any{StatusDelivered, cutoff}

	if deliveredEvery > 0 {
		deliveredCutoff := now.Add(-deliveredEvery).UTC().Format(time.RFC3339Nano)
		query += ` UNION ALL SELECT ` + parcelColumns + ` FROM parcels
            WHERE status = ? AND (last_checked_at IS NULL OR last_checked_at < ?)`
		args = append(args, StatusDelivered, deliveredCutoff)
	}
	query += ` ORDER BY first_seen_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list due parcels: %w", err)
	}
	defer rows.Close()

	var parcels []*Parcel
	for rows.Next() {
		p, err := scanParcel(rows)
		if err != nil {
			return nil, err
		}
		parcels = append(parcels, p)
	}
	return parcels, rows.Err()
}

// Snapshot returns parcels ordered most-recently-updated first, capped at
// limit (zero or negative means no cap).
func (s *Store) Snapshot(ctx context.Context, limit int) ([]*Parcel, error) {
	query := `SELECT ` + parcelColumns + ` FROM parcels ORDER BY updated_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("snapshot parcels: %w", err)
	}
	defer rows.Close()

	var parcels []*Parcel
	for rows.Next() {
		p, err := scanParcel(rows)
		if err != nil {
			return nil, err
		}
		parcels = append(parcels, p)
	}
	return parcels, rows.Err()
}

// Stats returns a count of parcels grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM parcels GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("parcel stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Remove deletes a parcel by tracking number. Operator convenience; the
// reconciliation engine never deletes.
func (s *Store) Remove(ctx context.Context, trackingNumber string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM parcels WHERE tracking_number = ?`,
		NormalizeTrackingNumber(trackingNumber))
	if err != nil {
		return false, fmt.Errorf("delete parcel: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

const parcelColumns = "tracking_number, courier, company, status, eta, confidence, classified_at, classified_message_id, last_checked_at, last_success_at, consecutive_failures, first_seen_at, updated_at, source_message_ids"

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getByTrackingNumber(ctx context.Context, q querier, trackingNumber string) (*Parcel, error) {
	row := q.QueryRowContext(ctx, `SELECT `+parcelColumns+` FROM parcels WHERE tracking_number = ?`, trackingNumber)
	p, err := scanParcel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, trackingNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("get parcel: %w", err)
	}
	return p, nil
}

func scanParcel(scanner interface{ Scan(dest ...any) error }) (*Parcel, error) {
	var (
		tracking        string
		courierStr      string
		company         string
		statusStr       string
		etaRaw          sql.NullString
		confidence      int
		classifiedRaw   sql.NullString
		classifiedMsgID sql.NullString
		lastCheckedRaw  sql.NullString
		lastSuccessRaw  sql.NullString
		failures        int
		firstSeenRaw    string
		updatedRaw      string
		messageIDsRaw   string
	)

	if err := scanner.Scan(
		&tracking,
		&courierStr,
		&company,
		&statusStr,
		&etaRaw,
		&confidence,
		&classifiedRaw,
		&classifiedMsgID,
		&lastCheckedRaw,
		&lastSuccessRaw,
		&failures,
		&firstSeenRaw,
		&updatedRaw,
		&messageIDsRaw,
	); err != nil {
		return nil, err
	}

	p := &Parcel{
		TrackingNumber:      tracking,
		Courier:             Courier(courierStr),
		Company:             company,
		Status:              Status(statusStr),
		Confidence:          confidence,
		ClassifiedMessageID: classifiedMsgID.String,
		ConsecutiveFailures: failures,
	}

	if etaRaw.Valid {
		if eta, err := parseTimeString(etaRaw.String); err == nil {
			p.ETA = &eta
		}
	}
	if classifiedRaw.Valid {
		if classified, err := parseTimeString(classifiedRaw.String); err == nil {
			p.ClassifiedAt = classified
		}
	}
	if lastCheckedRaw.Valid {
		if checked, err := parseTimeString(lastCheckedRaw.String); err == nil {
			p.LastCheckedAt = &checked
		}
	}
	if lastSuccessRaw.Valid {
		if success, err := parseTimeString(lastSuccessRaw.String); err == nil {
			p.LastSuccessAt = &success
		}
	}
	if firstSeen, err := parseTimeString(firstSeenRaw); err == nil {
		p.FirstSeenAt = firstSeen
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		p.UpdatedAt = updated
	}
	if err := json.Unmarshal([]byte(messageIDsRaw), &p.SourceMessageIDs); err != nil {
		return nil, fmt.Errorf("decode message ids for %s: %w", tracking, err)
	}
	return p, nil
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
