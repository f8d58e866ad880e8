package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/creativeapis/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// timeLayout has a fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const recordColumns = `id, op, status, error_kind, error_message, http_status, input, image_id, image_url,
	saved_to, correlation_id, credits, duration_ms, created_at`

func (s *SQLiteStore) CreateRecord(ctx context.Context, rec *model.Record) error {
	s.logger.Debug("sql", "op", "insert", "table", "records", "id", rec.ID)

	if !rec.Status.IsValid() {
		return fmt.Errorf("record %s: invalid status %q", rec.ID, rec.Status)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Op, string(rec.Status), rec.ErrorKind, rec.ErrorMessage, rec.HTTPStatus,
		rec.Input, rec.ImageID, rec.ImageURL, rec.SavedTo, rec.CorrelationID, rec.Credits,
		rec.Duration.Milliseconds(), rec.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

// GetRecord returns the record with the given ID, or nil if there is none.
func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	s.logger.Debug("sql", "op", "select", "table", "records", "id", id)

	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStore) ListRecords(ctx context.Context, opts model.ListOptions) ([]*model.Record, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "records", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var whereClauses []string
	var countArgs []any

	if opts.Op != "" {
		whereClauses = append(whereClauses, "op = ?")
		countArgs = append(countArgs, opts.Op)
	}
	if opts.Status != "" {
		whereClauses = append(whereClauses, "status = ?")
		countArgs = append(countArgs, string(opts.Status))
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`+whereSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `SELECT ` + recordColumns + ` FROM records` + whereSQL + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	listArgs := append(countArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var recs []*model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		recs = append(recs, rec)
	}
	return recs, total, rows.Err()
}

// DeleteRecordsBefore removes records created before the given time and
// returns how many were deleted.
func (s *SQLiteStore) DeleteRecordsBefore(ctx context.Context, before time.Time) (int64, error) {
	s.logger.Debug("sql", "op", "delete", "table", "records", "before", before)

	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE created_at < ?`,
		before.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*model.Record, error) {
	var rec model.Record
	var status, createdAt string
	var durationMS int64
	var credits sql.NullFloat64

	if err := row.Scan(&rec.ID, &rec.Op, &status, &rec.ErrorKind, &rec.ErrorMessage, &rec.HTTPStatus,
		&rec.Input, &rec.ImageID, &rec.ImageURL, &rec.SavedTo, &rec.CorrelationID, &credits,
		&durationMS, &createdAt); err != nil {
		return nil, err
	}

	rec.Status = model.RecordStatus(status)
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	if credits.Valid {
		c := credits.Float64
		rec.Credits = &c
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("record %s: parse created_at: %w", rec.ID, err)
	}
	rec.CreatedAt = t
	return &rec, nil
}
