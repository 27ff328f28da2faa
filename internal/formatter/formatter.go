// package formatter provides functions to export playlist and conversion data to various formats (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/desertthunder/karaoke/internal/models"
	"github.com/desertthunder/karaoke/internal/shared"
)

// ExportPlaylistToCSV converts a playlist to CSV format with columns: Position, Title, VideoID, Duration, KaraokeURL, VocalsURL
func ExportPlaylistToCSV(playlist *models.Playlist) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Position", "Title", "VideoID", "Duration", "KaraokeURL", "VocalsURL"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, song := range playlist.Songs {
		record := []string{
			strconv.Itoa(song.Position),
			song.Title,
			song.VideoID,
			strconv.Itoa(song.Duration),
			song.KaraokePath,
			song.VocalsPath,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportConversionsToCSV converts the conversion library to CSV format.
func ExportConversionsToCSV(conversions []models.Conversion) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "VideoID", "Title", "Duration", "KaraokeURL", "VocalsURL", "CreatedAt"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, c := range conversions {
		record := []string{
			strconv.FormatInt(c.ID, 10),
			c.VideoID,
			c.Title,
			strconv.Itoa(c.Duration),
			c.KaraokePath,
			c.VocalsPath,
			c.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportPlaylistToMarkdown converts a playlist to Markdown format
func ExportPlaylistToMarkdown(playlist *models.Playlist) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", playlist.Name))
	buf.WriteString(fmt.Sprintf("**Songs**: %d\n\n", len(playlist.Songs)))

	buf.WriteString("## Songs\n\n")
	for _, song := range playlist.Songs {
		title := song.Title
		if title == "" {
			title = song.VideoID
		}
		duration := shared.FormatDuration(song.Duration)
		buf.WriteString(fmt.Sprintf("%d. %s [%s]\n", song.Position, title, duration))
	}

	return buf.Bytes(), nil
}

// ExportPlaylistToText converts a playlist to plain text format
func ExportPlaylistToText(playlist *models.Playlist) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Playlist: %s\n", playlist.Name))
	buf.WriteString(fmt.Sprintf("Songs: %d\n\n", len(playlist.Songs)))

	for _, song := range playlist.Songs {
		title := song.Title
		if title == "" {
			title = song.VideoID
		}
		buf.WriteString(fmt.Sprintf("%d. %s\n", song.Position, title))
	}

	return buf.Bytes(), nil
}
