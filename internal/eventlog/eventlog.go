// Package eventlog records presence transitions, captures, and delivery
// outcomes in a local sqlite database. The log is diagnostic: frames
// themselves are never persisted, and losing the log on power loss is
// accepted.
package eventlog

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// NewDB opens (and if necessary creates) the event log at path.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS presence_events (
			kind TEXT NOT NULL,
			distance_mm DOUBLE NOT NULL,
			timestamp TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS captures (
			reason TEXT NOT NULL,
			ok BOOLEAN NOT NULL,
			timestamp TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS deliveries (
			frame_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create event log schema: %w", err)
	}

	return &DB{db}, nil
}

// RecordPresenceEvent stores one ENTER/EXIT transition.
func (db *DB) RecordPresenceEvent(kind string, distanceMM float64, at time.Time) error {
	_, err := db.Exec(
		"INSERT INTO presence_events (kind, distance_mm, timestamp) VALUES (?, ?, ?)",
		kind, distanceMM, at.UTC(),
	)
	return err
}

// RecordCapture stores one capture attempt and whether the camera produced
// a frame.
func (db *DB) RecordCapture(reason string, ok bool, at time.Time) error {
	_, err := db.Exec(
		"INSERT INTO captures (reason, ok, timestamp) VALUES (?, ?, ?)",
		reason, ok, at.UTC(),
	)
	return err
}

// RecordDelivery stores the final outcome of one frame: delivered, dropped,
// or evicted. Satisfies transmit.Recorder.
func (db *DB) RecordDelivery(frameID, reason string, attempts int, outcome string, at time.Time) error {
	_, err := db.Exec(
		"INSERT INTO deliveries (frame_id, reason, attempts, outcome, timestamp) VALUES (?, ?, ?, ?, ?)",
		frameID, reason, attempts, outcome, at.UTC(),
	)
	return err
}

// PresenceEvent is one logged transition.
type PresenceEvent struct {
	Kind       string    `json:"kind"`
	DistanceMM float64   `json:"distance_mm"`
	Timestamp  time.Time `json:"timestamp"`
}

// RecentEvents returns up to limit transitions, newest first.
func (db *DB) RecentEvents(limit int) ([]PresenceEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		"SELECT kind, distance_mm, timestamp FROM presence_events ORDER BY timestamp DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []PresenceEvent
	for rows.Next() {
		var e PresenceEvent
		if err := rows.Scan(&e.Kind, &e.DistanceMM, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// DeliveryCounts returns totals per outcome.
func (db *DB) DeliveryCounts() (map[string]int, error) {
	rows, err := db.Query("SELECT outcome, COUNT(*) FROM deliveries GROUP BY outcome")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}
