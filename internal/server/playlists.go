package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/desertthunder/karaoke/internal/models"
	"github.com/desertthunder/karaoke/internal/shared"
)

// handleListPlaylists returns all playlists newest-first, each with its
// ordered songs embedded.
func (a *API) handleListPlaylists(w http.ResponseWriter, r *http.Request) {
	playlists, err := a.playlists.ListWithSongs()
	if err != nil {
		a.logger.Error("failed to list playlists", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get playlists", err.Error())
		return
	}

	if playlists == nil {
		playlists = []models.Playlist{}
	}

	writeJSON(w, http.StatusOK, playlists)
}

func (a *API) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	playlist, err := a.playlists.Create(body.Name)
	if err != nil {
		a.writePlaylistError(w, err, "Failed to create playlist")
		return
	}

	writeJSON(w, http.StatusOK, playlist)
}

func (a *API) handleRenamePlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid playlist id", err.Error())
		return
	}

	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	playlist, err := a.playlists.Rename(id, body.Name)
	if err != nil {
		a.writePlaylistError(w, err, "Failed to update playlist")
		return
	}

	writeJSON(w, http.StatusOK, playlist)
}

func (a *API) handleAddSong(w http.ResponseWriter, r *http.Request) {
	playlistID, err := strconv.ParseInt(r.PathValue("playlistId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid playlist id", err.Error())
		return
	}

	var body struct {
		SongID int64 `json:"songId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if err := a.playlists.AddSong(playlistID, body.SongID); err != nil {
		a.writePlaylistError(w, err, "Failed to add song")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (a *API) handleRemoveSong(w http.ResponseWriter, r *http.Request) {
	playlistID, err := strconv.ParseInt(r.PathValue("playlistId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid playlist id", err.Error())
		return
	}

	songID, err := strconv.ParseInt(r.PathValue("songId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid song id", err.Error())
		return
	}

	if err := a.playlists.RemoveSong(playlistID, songID); err != nil {
		a.writePlaylistError(w, err, "Failed to remove song")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleReorder moves a song between two 1-based positions atomically.
func (a *API) handleReorder(w http.ResponseWriter, r *http.Request) {
	playlistID, err := strconv.ParseInt(r.PathValue("playlistId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid playlist id", err.Error())
		return
	}

	var body struct {
		FromPosition int `json:"fromPosition"`
		ToPosition   int `json:"toPosition"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if body.FromPosition < 1 || body.ToPosition < 1 {
		writeError(w, http.StatusBadRequest, "Positions are 1-based", "fromPosition and toPosition must be >= 1")
		return
	}

	if err := a.playlists.Reorder(playlistID, body.FromPosition, body.ToPosition); err != nil {
		a.writePlaylistError(w, err, "Failed to reorder")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// writePlaylistError maps store errors to playlist endpoint responses.
func (a *API) writePlaylistError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, shared.ErrInvalidName):
		writeError(w, http.StatusBadRequest, "Playlist name cannot be empty", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, shared.ErrDuplicateMembership):
		writeError(w, http.StatusConflict, "Song already in playlist", err.Error())
	default:
		a.logger.Error("playlist operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, fallback, err.Error())
	}
}
