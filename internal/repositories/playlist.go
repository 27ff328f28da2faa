package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/karaoke/internal/models"
	"github.com/desertthunder/karaoke/internal/shared"
	"github.com/mattn/go-sqlite3"
)

// PlaylistRepository handles persistence of playlists and their ordered membership.
type PlaylistRepository struct {
	db *sql.DB
}

// NewPlaylistRepository creates a new PlaylistRepository with the given database connection
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// Create inserts a new playlist and returns it with its generated ID.
// Fails with [shared.ErrInvalidName] when the name is empty or whitespace-only.
func (r *PlaylistRepository) Create(name string) (*models.Playlist, error) {
	playlist := &models.Playlist{Name: strings.TrimSpace(name)}
	if err := playlist.Validate(); err != nil {
		return nil, err
	}

	result, err := r.db.Exec("INSERT INTO playlists (name) VALUES (?)", playlist.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to insert playlist: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted id: %w", err)
	}

	return r.Get(id)
}

// Rename updates a playlist's name.
// Fails with [shared.ErrInvalidName] on a blank name and [shared.ErrNotFound]
// when the ID does not exist.
func (r *PlaylistRepository) Rename(id int64, name string) (*models.Playlist, error) {
	playlist := &models.Playlist{Name: strings.TrimSpace(name)}
	if err := playlist.Validate(); err != nil {
		return nil, err
	}

	result, err := r.db.Exec("UPDATE playlists SET name = ? WHERE id = ?", playlist.Name, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update playlist: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("playlist %d: %w", id, shared.ErrNotFound)
	}

	return r.Get(id)
}

// Get retrieves a playlist by ID without its songs.
func (r *PlaylistRepository) Get(id int64) (*models.Playlist, error) {
	query := `
		SELECT p.id, p.name, p.created_at, COUNT(ps.id)
		FROM playlists p
		LEFT JOIN playlist_songs ps ON p.id = ps.playlist_id
		WHERE p.id = ?
		GROUP BY p.id
	`

	var p models.Playlist
	err := r.db.QueryRow(query, id).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.SongCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("playlist %d: %w", id, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get playlist: %w", err)
	}

	return &p, nil
}

// ListWithSongs retrieves all playlists newest-first, each with its ordered songs.
func (r *PlaylistRepository) ListWithSongs() ([]models.Playlist, error) {
	query := `
		SELECT p.id, p.name, p.created_at, COUNT(ps.id)
		FROM playlists p
		LEFT JOIN playlist_songs ps ON p.id = ps.playlist_id
		GROUP BY p.id
		ORDER BY p.created_at DESC, p.id DESC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}
	defer rows.Close()

	var playlists []models.Playlist
	for rows.Next() {
		var p models.Playlist
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.SongCount); err != nil {
			return nil, fmt.Errorf("failed to scan playlist: %w", err)
		}
		playlists = append(playlists, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate playlists: %w", err)
	}

	for i := range playlists {
		songs, err := r.Songs(playlists[i].ID)
		if err != nil {
			return nil, err
		}
		playlists[i].Songs = songs
	}

	return playlists, nil
}

// Songs retrieves the ordered songs of one playlist.
func (r *PlaylistRepository) Songs(playlistID int64) ([]models.PlaylistSong, error) {
	query := `
		SELECT c.id, c.video_id, c.title, c.duration, c.karaoke_path, c.vocals_path, c.created_at, ps.position
		FROM playlist_songs ps
		JOIN conversions c ON ps.song_id = c.id
		WHERE ps.playlist_id = ?
		ORDER BY ps.position
	`

	rows, err := r.db.Query(query, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlist songs: %w", err)
	}
	defer rows.Close()

	songs := []models.PlaylistSong{}
	for rows.Next() {
		var s models.PlaylistSong
		var title sql.NullString
		err := rows.Scan(&s.ID, &s.VideoID, &title, &s.Duration, &s.KaraokePath, &s.VocalsPath, &s.CreatedAt, &s.Position)
		if err != nil {
			return nil, fmt.Errorf("failed to scan playlist song: %w", err)
		}
		s.Title = title.String
		songs = append(songs, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate playlist songs: %w", err)
	}

	return songs, nil
}

// AddSong appends a conversion to a playlist at position max+1.
//
// Fails with [shared.ErrDuplicateMembership] when the song is already in the
// playlist and [shared.ErrNotFound] when either ID does not exist.
func (r *PlaylistRepository) AddSong(playlistID, songID int64) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var next int
	err = tx.QueryRow(
		"SELECT COALESCE(MAX(position), 0) + 1 FROM playlist_songs WHERE playlist_id = ?",
		playlistID,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("failed to compute next position: %w", err)
	}

	_, err = tx.Exec(
		"INSERT INTO playlist_songs (playlist_id, song_id, position) VALUES (?, ?, ?)",
		playlistID, songID, next,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) {
			switch sqliteErr.ExtendedCode {
			case sqlite3.ErrConstraintUnique:
				return fmt.Errorf("song %d in playlist %d: %w", songID, playlistID, shared.ErrDuplicateMembership)
			case sqlite3.ErrConstraintForeignKey:
				return fmt.Errorf("playlist %d or song %d: %w", playlistID, songID, shared.ErrNotFound)
			}
		}
		return fmt.Errorf("failed to add song: %w", err)
	}

	return tx.Commit()
}

// RemoveSong deletes a membership row and renumbers the remaining entries of
// the playlist to a contiguous 1..N sequence, inside one transaction.
func (r *PlaylistRepository) RemoveSong(playlistID, songID int64) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		"DELETE FROM playlist_songs WHERE playlist_id = ? AND song_id = ?",
		playlistID, songID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove song: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("song %d in playlist %d: %w", songID, playlistID, shared.ErrNotFound)
	}

	if err := renumberPlaylist(tx, playlistID); err != nil {
		return err
	}

	return tx.Commit()
}

// Reorder moves the entry at fromPosition to toPosition within a playlist.
//
// Entries strictly between the two positions shift by one (direction
// dependent); the whole operation commits or rolls back as one unit. Equal
// positions are a no-op and a destination past the end clamps to the last
// position. Fails with [shared.ErrNotFound] when no entry exists at
// fromPosition.
func (r *PlaylistRepository) Reorder(playlistID int64, fromPosition, toPosition int) error {
	if fromPosition == toPosition {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var entryID int64
	err = tx.QueryRow(
		"SELECT id FROM playlist_songs WHERE playlist_id = ? AND position = ?",
		playlistID, fromPosition,
	).Scan(&entryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("position %d in playlist %d: %w", fromPosition, playlistID, shared.ErrNotFound)
		}
		return fmt.Errorf("failed to find entry: %w", err)
	}

	// Clamp the destination to the last occupied position so out-of-range
	// input cannot open a gap in the 1..N sequence.
	var last int
	err = tx.QueryRow(
		"SELECT COALESCE(MAX(position), 0) FROM playlist_songs WHERE playlist_id = ?",
		playlistID,
	).Scan(&last)
	if err != nil {
		return fmt.Errorf("failed to read last position: %w", err)
	}
	if toPosition > last {
		toPosition = last
	}
	if toPosition == fromPosition {
		return tx.Commit()
	}

	if fromPosition < toPosition {
		// Moving forward: entries in (from, to] shift back by one.
		_, err = tx.Exec(`
			UPDATE playlist_songs
			SET position = position - 1
			WHERE playlist_id = ? AND position > ? AND position <= ?
		`, playlistID, fromPosition, toPosition)
	} else {
		// Moving backward: entries in [to, from) shift forward by one.
		_, err = tx.Exec(`
			UPDATE playlist_songs
			SET position = position + 1
			WHERE playlist_id = ? AND position >= ? AND position < ?
		`, playlistID, toPosition, fromPosition)
	}
	if err != nil {
		return fmt.Errorf("failed to shift positions: %w", err)
	}

	_, err = tx.Exec("UPDATE playlist_songs SET position = ? WHERE id = ?", toPosition, entryID)
	if err != nil {
		return fmt.Errorf("failed to place entry: %w", err)
	}

	return tx.Commit()
}

// Delete removes a playlist; memberships go with it via the foreign key cascade.
func (r *PlaylistRepository) Delete(id int64) error {
	result, err := r.db.Exec("DELETE FROM playlists WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("playlist %d: %w", id, shared.ErrNotFound)
	}

	return nil
}

// renumberPlaylist rewrites positions of a playlist's entries to a contiguous
// 1..N sequence preserving their prior relative order.
func renumberPlaylist(tx *sql.Tx, playlistID int64) error {
	rows, err := tx.Query(
		"SELECT id FROM playlist_songs WHERE playlist_id = ? ORDER BY position",
		playlistID,
	)
	if err != nil {
		return fmt.Errorf("failed to read playlist order: %w", err)
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan entry id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to iterate entries: %w", err)
	}
	rows.Close()

	for i, id := range ids {
		if _, err := tx.Exec("UPDATE playlist_songs SET position = ? WHERE id = ?", i+1, id); err != nil {
			return fmt.Errorf("failed to renumber entry: %w", err)
		}
	}

	return nil
}
