package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/karaoke/internal/models"
	"github.com/desertthunder/karaoke/internal/shared"
	"github.com/mattn/go-sqlite3"
)

// ConversionRepository handles persistence of conversion records.
type ConversionRepository struct {
	db *sql.DB
}

// NewConversionRepository creates a new ConversionRepository with the given database connection
func NewConversionRepository(db *sql.DB) *ConversionRepository {
	return &ConversionRepository{db: db}
}

// Create inserts a new conversion record and sets its generated ID.
//
// A unique-constraint violation on video_id maps to
// [shared.ErrDuplicateConversion] so the caller can reconcile a concurrent
// insert by re-reading the existing record.
func (r *ConversionRepository) Create(c *models.Conversion) error {
	query := `
		INSERT INTO conversions (video_id, title, duration, karaoke_path, vocals_path)
		VALUES (?, ?, ?, ?, ?)
	`

	var title any = c.Title
	if c.Title == "" {
		title = nil
	}

	result, err := r.db.Exec(query, c.VideoID, title, c.Duration, c.KaraokePath, c.VocalsPath)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("video %s: %w", c.VideoID, shared.ErrDuplicateConversion)
		}
		return fmt.Errorf("failed to insert conversion: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted id: %w", err)
	}
	c.ID = id

	return nil
}

// FindByVideoID retrieves a conversion by its YouTube video ID.
// Returns [shared.ErrNotFound] when no record exists for the ID.
func (r *ConversionRepository) FindByVideoID(videoID string) (*models.Conversion, error) {
	query := `
		SELECT id, video_id, title, duration, karaoke_path, vocals_path, created_at
		FROM conversions
		WHERE video_id = ?
	`

	return r.scanOne(r.db.QueryRow(query, videoID))
}

// Get retrieves a conversion by its internal ID.
func (r *ConversionRepository) Get(id int64) (*models.Conversion, error) {
	query := `
		SELECT id, video_id, title, duration, karaoke_path, vocals_path, created_at
		FROM conversions
		WHERE id = ?
	`

	return r.scanOne(r.db.QueryRow(query, id))
}

// List retrieves all conversions ordered by recency, optionally filtered by a
// case-insensitive title substring.
func (r *ConversionRepository) List(search string) ([]models.Conversion, error) {
	query := `
		SELECT id, video_id, title, duration, karaoke_path, vocals_path, created_at
		FROM conversions
	`
	var args []any

	if search != "" {
		query += " WHERE title LIKE ?"
		args = append(args, "%"+search+"%")
	}

	query += " ORDER BY created_at DESC, id DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversions: %w", err)
	}
	defer rows.Close()

	var conversions []models.Conversion
	for rows.Next() {
		c, err := scanConversion(rows)
		if err != nil {
			return nil, err
		}
		conversions = append(conversions, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversions: %w", err)
	}

	return conversions, nil
}

// Delete removes a conversion record by ID.
//
// Playlist memberships referencing the record are removed by the foreign key
// cascade; remaining entries of affected playlists are renumbered so
// positions stay contiguous. The caller is responsible for deleting the
// underlying media files.
func (r *ConversionRepository) Delete(id int64) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Collect playlists that will lose an entry before the cascade fires.
	rows, err := tx.Query("SELECT DISTINCT playlist_id FROM playlist_songs WHERE song_id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to find affected playlists: %w", err)
	}
	var affected []int64
	for rows.Next() {
		var pid int64
		if err := rows.Scan(&pid); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan playlist id: %w", err)
		}
		affected = append(affected, pid)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to iterate playlists: %w", err)
	}
	rows.Close()

	result, err := tx.Exec("DELETE FROM conversions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete conversion: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("conversion %d: %w", id, shared.ErrNotFound)
	}

	for _, pid := range affected {
		if err := renumberPlaylist(tx, pid); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// scanOne scans a single conversion row, mapping sql.ErrNoRows to shared.ErrNotFound.
func (r *ConversionRepository) scanOne(row *sql.Row) (*models.Conversion, error) {
	c, err := scanConversion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanConversion(s scanner) (*models.Conversion, error) {
	var c models.Conversion
	var title sql.NullString

	err := s.Scan(&c.ID, &c.VideoID, &title, &c.Duration, &c.KaraokePath, &c.VocalsPath, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan conversion: %w", err)
	}

	c.Title = title.String
	return &c, nil
}
