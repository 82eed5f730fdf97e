package archive

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps the snapshot tables.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by a pgx pool.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const createSnapshotsSQL = `
CREATE TABLE IF NOT EXISTS live_flight_snapshots (
    retrieved_at        TIMESTAMPTZ NOT NULL,
    position            INTEGER     NOT NULL,
    flight_number       TEXT,
    airline_name        TEXT,
    departure_iata      TEXT,
    arrival_iata        TEXT,
    departure_scheduled TIMESTAMPTZ,
    departure_estimated TEXT,
    arrival_scheduled   TEXT,
    arrival_estimated   TEXT,
    flight_status       TEXT,
    raw                 JSONB       NOT NULL,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (retrieved_at, position)
)`

const createSnapshotsIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_live_flight_snapshots_flight_number
    ON live_flight_snapshots (flight_number)`

// EnsureSchema creates the snapshot table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createSnapshotsSQL); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, createSnapshotsIndexSQL)
	return err
}

const upsertSnapshotSQL = `
INSERT INTO live_flight_snapshots (retrieved_at, position, flight_number, airline_name, departure_iata, arrival_iata,
    departure_scheduled, departure_estimated, arrival_scheduled, arrival_estimated, flight_status, raw, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW(),NOW())
ON CONFLICT (retrieved_at, position) DO UPDATE
SET flight_number = EXCLUDED.flight_number,
    airline_name = EXCLUDED.airline_name,
    departure_iata = EXCLUDED.departure_iata,
    arrival_iata = EXCLUDED.arrival_iata,
    departure_scheduled = EXCLUDED.departure_scheduled,
    departure_estimated = EXCLUDED.departure_estimated,
    arrival_scheduled = EXCLUDED.arrival_scheduled,
    arrival_estimated = EXCLUDED.arrival_estimated,
    flight_status = EXCLUDED.flight_status,
    raw = EXCLUDED.raw,
    updated_at = NOW()`

// SaveSnapshot writes every row of one fetch in a single batch.
func (s *Store) SaveSnapshot(ctx context.Context, rows []SnapshotRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(upsertSnapshotSQL,
			r.RetrievedAt, r.Position, r.FlightNumber, r.AirlineName, r.DepartureIATA, r.ArrivalIATA,
			r.DepartureScheduled, r.DepartureEstimated, r.ArrivalScheduled, r.ArrivalEstimated, r.Status, r.Raw)
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	for range rows {
		if _, err := res.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot summarizes one archived fetch.
type Snapshot struct {
	RetrievedAt  time.Time      `json:"retrieved_at"`
	Flights      int            `json:"flights"`
	StatusCounts map[string]int `json:"status_counts"`
}

const listSnapshotsSQL = `
WITH recent AS (
    SELECT DISTINCT retrieved_at
    FROM live_flight_snapshots
    ORDER BY retrieved_at DESC
    LIMIT $1
)
SELECT s.retrieved_at, s.flight_status, COUNT(*)
FROM live_flight_snapshots s
JOIN recent r ON r.retrieved_at = s.retrieved_at
GROUP BY s.retrieved_at, s.flight_status
ORDER BY s.retrieved_at DESC`

// ListSnapshots returns the most recent limit fetches, newest first.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	rows, err := s.pool.Query(ctx, listSnapshotsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshots := make([]Snapshot, 0)
	for rows.Next() {
		var retrievedAt time.Time
		var status *string
		var count int
		if err := rows.Scan(&retrievedAt, &status, &count); err != nil {
			return nil, err
		}
		if n := len(snapshots); n == 0 || !snapshots[n-1].RetrievedAt.Equal(retrievedAt) {
			snapshots = append(snapshots, Snapshot{RetrievedAt: retrievedAt, StatusCounts: map[string]int{}})
		}
		last := &snapshots[len(snapshots)-1]
		key := "unknown"
		if status != nil {
			key = *status
		}
		last.StatusCounts[key] += count
		last.Flights += count
	}
	return snapshots, rows.Err()
}
