package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/karaoke/internal/models"
	"github.com/desertthunder/karaoke/internal/repositories"
	"github.com/desertthunder/karaoke/internal/shared"
	"github.com/desertthunder/karaoke/internal/tasks"
)

// API bundles the route handlers for conversions and playlists.
type API struct {
	engine      *tasks.ConvertEngine
	conversions *repositories.ConversionRepository
	playlists   *repositories.PlaylistRepository
	logger      *log.Logger
	outputDir   string
}

// APIOpts contains dependencies for constructing an [API].
type APIOpts struct {
	Engine      *tasks.ConvertEngine
	Conversions *repositories.ConversionRepository
	Playlists   *repositories.PlaylistRepository
	Logger      *log.Logger
	OutputDir   string
}

// NewAPI creates the handler set for the karaoke service.
func NewAPI(opts APIOpts) *API {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &API{
		engine:      opts.Engine,
		conversions: opts.Conversions,
		playlists:   opts.Playlists,
		logger:      opts.Logger,
		outputDir:   opts.OutputDir,
	}
}

// Register attaches all API routes to the router.
func (a *API) Register(r Router) {
	r.Handle(http.MethodPost, "/process", http.HandlerFunc(a.handleProcess))
	r.Handle(http.MethodGet, "/conversions", http.HandlerFunc(a.handleListConversions))
	r.Handle(http.MethodDelete, "/conversions/{id}", http.HandlerFunc(a.handleDeleteConversion))

	r.Handle(http.MethodGet, "/playlists", http.HandlerFunc(a.handleListPlaylists))
	r.Handle(http.MethodPost, "/playlists", http.HandlerFunc(a.handleCreatePlaylist))
	r.Handle(http.MethodPut, "/playlists/{id}", http.HandlerFunc(a.handleRenamePlaylist))
	r.Handle(http.MethodPost, "/playlists/{playlistId}/songs", http.HandlerFunc(a.handleAddSong))
	r.Handle(http.MethodDelete, "/playlists/{playlistId}/songs/{songId}", http.HandlerFunc(a.handleRemoveSong))
	r.Handle(http.MethodPut, "/playlists/{playlistId}/songs/reorder", http.HandlerFunc(a.handleReorder))

	// Persisted media tracks are served statically under the output prefix.
	r.Handle(http.MethodGet, tasks.OutputURLPrefix,
		http.StripPrefix(tasks.OutputURLPrefix, http.FileServer(http.Dir(a.outputDir))))
}

// handleProcess converts a YouTube URL into a karaoke track pair.
func (a *API) handleProcess(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.URL == "" {
		writeError(w, http.StatusBadRequest, "YouTube URL is required", "missing url field")
		return
	}

	result, err := a.engine.Process(r.Context(), body.URL)
	if err != nil {
		a.logger.Error("conversion failed", "url", body.URL, "error", err)
		status, message := mapPipelineError(err)
		writeError(w, status, message, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleListConversions returns all conversions newest-first, optionally
// filtered by a title substring.
func (a *API) handleListConversions(w http.ResponseWriter, r *http.Request) {
	conversions, err := a.conversions.List(r.URL.Query().Get("search"))
	if err != nil {
		a.logger.Error("failed to list conversions", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get conversion records", err.Error())
		return
	}

	if conversions == nil {
		conversions = []models.Conversion{}
	}

	writeJSON(w, http.StatusOK, conversions)
}

// handleDeleteConversion removes a record, its playlist memberships, and its
// media files (best-effort).
func (a *API) handleDeleteConversion(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid conversion id", err.Error())
		return
	}

	conversion, err := a.conversions.Get(id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Song not found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to remove song", err.Error())
		return
	}

	if err := a.conversions.Delete(id); err != nil {
		a.logger.Error("failed to delete conversion", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to remove song", err.Error())
		return
	}

	// Files go only after the record is gone, so a store failure never
	// leaves a record pointing at deleted tracks.
	a.engine.RemoveMediaFiles(conversion)

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// writeJSON writes data as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// errorResponse is the error body shape for all endpoints: a stable
// user-facing category message plus the raw diagnostic string.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, errorResponse{Error: message, Details: details})
}

// mapPipelineError translates a pipeline failure into an HTTP status and a
// stable user-facing message. Each stage failure maps to exactly one category.
func mapPipelineError(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrInvalidSourceURL):
		return http.StatusBadRequest, "Please provide a valid YouTube video URL"
	case errors.Is(err, shared.ErrDurationExceeded):
		return http.StatusBadRequest, "Video duration exceeds limit, please choose a video under 10 minutes"
	case errors.Is(err, shared.ErrSourceUnavailable):
		return http.StatusBadGateway, "Failed to fetch video information, please verify URL is correct or video is available"
	case errors.Is(err, shared.ErrDownloadFailed):
		return http.StatusBadGateway, "Failed to download YouTube video, please verify URL is correct or video is available"
	case errors.Is(err, shared.ErrToolNotInstalled):
		return http.StatusServiceUnavailable, "Voice separation engine is not installed"
	case errors.Is(err, shared.ErrSeparationTimeout):
		return http.StatusInternalServerError, "Voice separation processing took too long, please try again later or choose a shorter video"
	case errors.Is(err, shared.ErrSeparationOutputMissing):
		return http.StatusInternalServerError, "Voice separation processing failed, please verify audio file format"
	case errors.Is(err, shared.ErrSeparationFailed):
		return http.StatusInternalServerError, "Voice separation engine failed, please try again later"
	default:
		return http.StatusInternalServerError, "Error occurred during processing"
	}
}
