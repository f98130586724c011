package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/girowatch/girowatch/pkg/models"
	_ "github.com/mattn/go-sqlite3"
	"gitlab.com/tozd/go/errors"
)

// Store is the dispatch journal: an audit trail of received events and
// dispatch outcomes. It is never read back to rebuild pairing state.
type Store struct {
	db *sql.DB
}

// New opens (and creates) the journal at dbPath
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Errorf("creating journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate runs database migrations
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			source TEXT NOT NULL,
			received_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS dispatches (
			id TEXT PRIMARY KEY,
			pair_id TEXT NOT NULL,
			xml_path TEXT NOT NULL,
			pdf_path TEXT NOT NULL,
			output_path TEXT NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('succeeded','failed')),
			error TEXT,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_events_received ON events(received_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatches_started ON dispatches(started_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatches_status ON dispatches(status)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return errors.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// CreateEvent stores a received watch event
func (s *Store) CreateEvent(e *models.WatchEvent) error {
	_, err := s.db.Exec(`
		INSERT INTO events (id, path, source, received_at)
		VALUES (?, ?, ?, ?)
	`, e.ID, e.Path, string(e.Source), e.ReceivedAt)
	if err != nil {
		return errors.Errorf("inserting event: %w", err)
	}
	return nil
}

// RecordDispatch stores the outcome of one dispatch
func (s *Store) RecordDispatch(r *models.DispatchRecord) error {
	var errText sql.NullString
	if r.Error != "" {
		errText = sql.NullString{String: r.Error, Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO dispatches (
			id, pair_id, xml_path, pdf_path, output_path,
			status, error, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.PairID, r.XMLPath, r.PDFPath, r.OutputPath,
		string(r.Status), errText, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return errors.Errorf("inserting dispatch: %w", err)
	}
	return nil
}

// ListDispatches returns the most recent dispatches, newest first
func (s *Store) ListDispatches(req models.HistoryRequest) ([]models.DispatchRecord, error) {
	query := `
		SELECT id, pair_id, xml_path, pdf_path, output_path,
			   status, error, started_at, finished_at
		FROM dispatches
		WHERE 1=1
	`
	args := []interface{}{}

	if req.Status != "" {
		query += " AND status = ?"
		args = append(args, string(req.Status))
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	query += " ORDER BY started_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Errorf("querying dispatches: %w", err)
	}
	defer rows.Close()

	var records []models.DispatchRecord
	for rows.Next() {
		var r models.DispatchRecord
		var status string
		var errText sql.NullString

		err := rows.Scan(
			&r.ID, &r.PairID, &r.XMLPath, &r.PDFPath, &r.OutputPath,
			&status, &errText, &r.StartedAt, &r.FinishedAt,
		)
		if err != nil {
			return nil, errors.Errorf("scanning dispatch: %w", err)
		}
		r.Status = models.DispatchStatus(status)
		if errText.Valid {
			r.Error = errText.String
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// GetStats returns journal statistics
func (s *Store) GetStats() (*models.Stats, error) {
	stats := &models.Stats{
		ByStatus: make(map[string]int),
	}

	row := s.db.QueryRow("SELECT COUNT(*) FROM events")
	if err := row.Scan(&stats.TotalEvents); err != nil {
		return nil, errors.Errorf("counting events: %w", err)
	}

	rows, err := s.db.Query("SELECT status, COUNT(*) FROM dispatches GROUP BY status")
	if err != nil {
		return nil, errors.Errorf("counting dispatches: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.ByStatus[status] = count
		stats.TotalDispatches += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var last sql.NullString
	row = s.db.QueryRow("SELECT MAX(finished_at) FROM dispatches")
	if err := row.Scan(&last); err != nil {
		return nil, errors.Errorf("reading last dispatch: %w", err)
	}
	if last.Valid {
		if t, err := parseSQLiteTime(last.String); err == nil {
			stats.LastDispatchAt = &t
		}
	}

	return stats, nil
}

// Prune deletes journal rows older than the cutoff and returns how many were removed
func (s *Store) Prune(cutoff time.Time) (int64, error) {
	var total int64
	for _, stmt := range []string{
		`DELETE FROM events WHERE received_at < ?`,
		`DELETE FROM dispatches WHERE finished_at < ?`,
	} {
		res, err := s.db.Exec(stmt, cutoff)
		if err != nil {
			return total, errors.Errorf("pruning journal: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// aggregates lose the DATETIME column type, so MAX() comes back as text
func parseSQLiteTime(value string) (time.Time, error) {
	layouts := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05",
		time.RFC3339Nano,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognized time %q", value)
}
