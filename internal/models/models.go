// package models defines the data model for the karaoke conversion service
package models

import (
	"strings"
	"time"

	"github.com/desertthunder/karaoke/internal/shared"
)

// Conversion represents one completed karaoke conversion.
//
// VideoID is the canonical YouTube identifier and is unique across all
// records: at most one conversion per source video ever exists. A record is
// only created after both track files are verified present on disk.
type Conversion struct {
	ID          int64     `json:"id"`
	VideoID     string    `json:"video_id"`
	Title       string    `json:"title,omitempty"`
	Duration    int       `json:"duration"` // Duration in seconds
	KaraokePath string    `json:"karaoke_path"`
	VocalsPath  string    `json:"vocals_path"`
	CreatedAt   time.Time `json:"created_at"`
}

// Playlist is a named, ordered collection of conversions.
type Playlist struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	CreatedAt time.Time      `json:"created_at"`
	SongCount int            `json:"song_count"`
	Songs     []PlaylistSong `json:"songs"`
}

// Validate checks that the playlist name is non-empty after trimming.
func (p *Playlist) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return shared.ErrInvalidName
	}
	return nil
}

// PlaylistSong is a conversion embedded in a playlist at a 1-based position.
//
// Positions within a playlist are contiguous 1..N after every mutation.
type PlaylistSong struct {
	Conversion
	Position int `json:"position"`
}
