package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/karaoke/internal/models"
	"github.com/desertthunder/karaoke/internal/repositories"
	"github.com/desertthunder/karaoke/internal/shared"
	"github.com/desertthunder/karaoke/internal/tasks"
	tu "github.com/desertthunder/karaoke/internal/testing"
	"golang.org/x/time/rate"
)

// testServer bundles the wired router with the stores backing it.
type testServer struct {
	router      *BasicRouter
	broadcaster *tasks.Broadcaster
	conversions *repositories.ConversionRepository
	playlists   *repositories.PlaylistRepository
	outputDir   string
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	conversions := repositories.NewConversionRepository(db)
	playlists := repositories.NewPlaylistRepository(db)
	broadcaster := tasks.NewBroadcaster()

	outputDir := t.TempDir()
	engine := tasks.NewConvertEngine(tasks.EngineOpts{
		Conversions: conversions,
		Fetcher:     &tu.FakeFetcher{},
		Separator:   &tu.FakeSeparator{},
		Broadcaster: broadcaster,
		TempDir:     t.TempDir(),
		OutputDir:   outputDir,
		Now:         func() time.Time { return time.UnixMilli(1700000000000) },
	})

	api := NewAPI(APIOpts{
		Engine:      engine,
		Conversions: conversions,
		Playlists:   playlists,
		OutputDir:   outputDir,
	})

	router := NewBasicRouter()
	api.Register(router)
	router.Handler(NewStatusHandler(broadcaster, nil))

	return &testServer{
		router:      router,
		broadcaster: broadcaster,
		conversions: conversions,
		playlists:   playlists,
		outputDir:   outputDir,
	}
}

// request performs one JSON request against the router.
func (ts *testServer) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Error
}

func createTestSong(t *testing.T, ts *testServer, n int) *models.Conversion {
	t.Helper()

	c := &models.Conversion{
		VideoID:     fmt.Sprintf("video%06d", n),
		Title:       fmt.Sprintf("Song %d", n),
		Duration:    200,
		KaraokePath: fmt.Sprintf("/output/%d_karaoke.mp3", n),
		VocalsPath:  fmt.Sprintf("/output/%d_vocals.mp3", n),
	}
	if err := ts.conversions.Create(c); err != nil {
		t.Fatalf("failed to create conversion: %v", err)
	}
	return c
}

func TestProcessEndpoint(t *testing.T) {
	t.Run("MissingURL", func(t *testing.T) {
		ts := setupTestServer(t)

		rec := ts.request(t, http.MethodPost, "/process", map[string]string{})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		if msg := decodeError(t, rec); msg != "YouTube URL is required" {
			t.Errorf("unexpected error message %q", msg)
		}
	})

	t.Run("InvalidURL", func(t *testing.T) {
		ts := setupTestServer(t)

		rec := ts.request(t, http.MethodPost, "/process", map[string]string{"url": "https://vimeo.com/123"})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		if msg := decodeError(t, rec); msg != "Please provide a valid YouTube video URL" {
			t.Errorf("unexpected error message %q", msg)
		}
	})

	t.Run("Success", func(t *testing.T) {
		ts := setupTestServer(t)

		rec := ts.request(t, http.MethodPost, "/process",
			map[string]string{"url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ"})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var result tasks.ConvertResult
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatalf("failed to decode result: %v", err)
		}
		if result.KaraokeURL != "/output/1700000000000_karaoke.mp3" || result.IsExisting {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("ExistingConversion", func(t *testing.T) {
		ts := setupTestServer(t)
		url := map[string]string{"url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ"}

		ts.request(t, http.MethodPost, "/process", url)
		rec := ts.request(t, http.MethodPost, "/process", url)

		var result tasks.ConvertResult
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatalf("failed to decode result: %v", err)
		}
		if !result.IsExisting {
			t.Error("expected repeat request to report the existing record")
		}
	})
}

func TestConversionEndpoints(t *testing.T) {
	t.Run("ListEmpty", func(t *testing.T) {
		ts := setupTestServer(t)

		rec := ts.request(t, http.MethodGet, "/conversions", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
			t.Errorf("expected empty JSON array, got %q", body)
		}
	})

	t.Run("Search", func(t *testing.T) {
		ts := setupTestServer(t)
		createTestSong(t, ts, 1)
		createTestSong(t, ts, 2)

		rec := ts.request(t, http.MethodGet, "/conversions?search=Song+1", nil)
		var got []models.Conversion
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("failed to decode conversions: %v", err)
		}
		if len(got) != 1 || got[0].Title != "Song 1" {
			t.Errorf("expected one filtered conversion, got %+v", got)
		}
	})

	t.Run("DeleteNotFound", func(t *testing.T) {
		ts := setupTestServer(t)

		rec := ts.request(t, http.MethodDelete, "/conversions/999", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
		if msg := decodeError(t, rec); msg != "Song not found" {
			t.Errorf("unexpected error message %q", msg)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		ts := setupTestServer(t)
		c := createTestSong(t, ts, 1)

		for _, name := range []string{"1_karaoke.mp3", "1_vocals.mp3"} {
			if err := os.WriteFile(filepath.Join(ts.outputDir, name), []byte("track"), 0644); err != nil {
				t.Fatalf("failed to write media file: %v", err)
			}
		}

		rec := ts.request(t, http.MethodDelete, fmt.Sprintf("/conversions/%d", c.ID), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		list := ts.request(t, http.MethodGet, "/conversions", nil)
		if body := strings.TrimSpace(list.Body.String()); body != "[]" {
			t.Errorf("expected empty list after delete, got %q", body)
		}

		// The media files go along with the record.
		for _, name := range []string{"1_karaoke.mp3", "1_vocals.mp3"} {
			if _, err := os.Stat(filepath.Join(ts.outputDir, name)); !errors.Is(err, os.ErrNotExist) {
				t.Errorf("expected %s removed, stat returned %v", name, err)
			}
		}
	})
}

func TestPlaylistEndpoints(t *testing.T) {
	t.Run("CreateEmptyName", func(t *testing.T) {
		ts := setupTestServer(t)

		rec := ts.request(t, http.MethodPost, "/playlists", map[string]string{"name": "  "})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		if msg := decodeError(t, rec); msg != "Playlist name cannot be empty" {
			t.Errorf("unexpected error message %q", msg)
		}
	})

	t.Run("CreateAndRename", func(t *testing.T) {
		ts := setupTestServer(t)

		rec := ts.request(t, http.MethodPost, "/playlists", map[string]string{"name": "Party"})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var p models.Playlist
		if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
			t.Fatalf("failed to decode playlist: %v", err)
		}
		if p.Name != "Party" || p.ID == 0 {
			t.Errorf("unexpected playlist %+v", p)
		}

		rec = ts.request(t, http.MethodPut, fmt.Sprintf("/playlists/%d", p.ID), map[string]string{"name": "Afterparty"})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		rec = ts.request(t, http.MethodPut, "/playlists/999", map[string]string{"name": "Ghost"})
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404 for unknown playlist, got %d", rec.Code)
		}
	})

	t.Run("Membership", func(t *testing.T) {
		ts := setupTestServer(t)
		c := createTestSong(t, ts, 1)

		p, err := ts.playlists.Create("Mix")
		if err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}

		path := fmt.Sprintf("/playlists/%d/songs", p.ID)
		rec := ts.request(t, http.MethodPost, path, map[string]int64{"songId": c.ID})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		rec = ts.request(t, http.MethodPost, path, map[string]int64{"songId": c.ID})
		if rec.Code != http.StatusConflict {
			t.Errorf("expected 409 on duplicate add, got %d", rec.Code)
		}

		rec = ts.request(t, http.MethodDelete, fmt.Sprintf("/playlists/%d/songs/%d", p.ID, c.ID), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		rec = ts.request(t, http.MethodDelete, fmt.Sprintf("/playlists/%d/songs/%d", p.ID, c.ID), nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404 removing absent song, got %d", rec.Code)
		}
	})

	t.Run("Reorder", func(t *testing.T) {
		ts := setupTestServer(t)

		p, err := ts.playlists.Create("Queue")
		if err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}
		for i := 1; i <= 3; i++ {
			c := createTestSong(t, ts, i)
			if err := ts.playlists.AddSong(p.ID, c.ID); err != nil {
				t.Fatalf("failed to add song: %v", err)
			}
		}

		path := fmt.Sprintf("/playlists/%d/songs/reorder", p.ID)
		rec := ts.request(t, http.MethodPut, path, map[string]int{"fromPosition": 1, "toPosition": 3})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		songs, err := ts.playlists.Songs(p.ID)
		if err != nil {
			t.Fatalf("failed to list songs: %v", err)
		}
		if songs[2].Title != "Song 1" {
			t.Errorf("expected Song 1 moved last, got %q", songs[2].Title)
		}

		rec = ts.request(t, http.MethodPut, path, map[string]int{"fromPosition": 0, "toPosition": 2})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for zero position, got %d", rec.Code)
		}
	})

	t.Run("ListWithSongs", func(t *testing.T) {
		ts := setupTestServer(t)
		c := createTestSong(t, ts, 1)
		p, _ := ts.playlists.Create("Mix")
		if err := ts.playlists.AddSong(p.ID, c.ID); err != nil {
			t.Fatalf("failed to add song: %v", err)
		}

		rec := ts.request(t, http.MethodGet, "/playlists", nil)
		var got []models.Playlist
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("failed to decode playlists: %v", err)
		}
		if len(got) != 1 || got[0].SongCount != 1 || len(got[0].Songs) != 1 {
			t.Errorf("expected playlist with embedded songs, got %+v", got)
		}
		if got[0].Songs[0].Position != 1 {
			t.Errorf("expected position 1, got %d", got[0].Songs[0].Position)
		}
	})
}

func TestStatusStream(t *testing.T) {
	ts := setupTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/status", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		ts.router.ServeHTTP(rec, req)
	}()

	// Wait for the handler to register its subscriber before publishing.
	deadline := time.After(2 * time.Second)
	for ts.broadcaster.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("handler never subscribed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	ts.broadcaster.Publish(tasks.StatusUpdate{Message: "Downloading YouTube video", Progress: 42})

	// Give the handler a moment to drain the buffered event before closing
	// the connection.
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected SSE content type, got %q", ct)
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, "data: ") || !strings.HasSuffix(body, "\n\n") {
		t.Errorf("expected SSE framing, got %q", body)
	}

	var update tasks.StatusUpdate
	payload := strings.TrimSpace(strings.TrimPrefix(body, "data: "))
	if err := json.Unmarshal([]byte(payload), &update); err != nil {
		t.Fatalf("failed to decode event %q: %v", payload, err)
	}
	if update.Message != "Downloading YouTube video" || update.Progress != 42 {
		t.Errorf("unexpected event %+v", update)
	}
}

func TestMiddleware(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("CORSAllowedOrigin", func(t *testing.T) {
		handler := CORS([]string{"http://localhost:5173"})(okHandler)

		req := httptest.NewRequest(http.MethodGet, "/conversions", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
			t.Errorf("expected origin echoed, got %q", got)
		}
	})

	t.Run("CORSUnknownOrigin", func(t *testing.T) {
		handler := CORS([]string{"http://localhost:5173"})(okHandler)

		req := httptest.NewRequest(http.MethodGet, "/conversions", nil)
		req.Header.Set("Origin", "http://evil.example")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("expected no CORS headers for unknown origin, got %q", got)
		}
	})

	t.Run("CORSPreflight", func(t *testing.T) {
		handler := CORS([]string{"http://localhost:5173"})(okHandler)

		req := httptest.NewRequest(http.MethodOptions, "/process", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204 for preflight, got %d", rec.Code)
		}
	})

	t.Run("RateLimit", func(t *testing.T) {
		limiter := rate.NewLimiter(rate.Limit(0), 1)
		handler := RateLimit(limiter, "/process")(okHandler)

		req := httptest.NewRequest(http.MethodPost, "/process", nil)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected first request allowed, got %d", rec.Code)
		}

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusTooManyRequests {
			t.Errorf("expected 429 once the burst is spent, got %d", rec.Code)
		}

		// Other paths are never limited.
		other := httptest.NewRequest(http.MethodGet, "/conversions", nil)
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, other)
		if rec.Code != http.StatusOK {
			t.Errorf("expected unthrottled path to pass, got %d", rec.Code)
		}
	})
}

func TestMapPipelineError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"InvalidURL", shared.ErrInvalidSourceURL, http.StatusBadRequest},
		{"Duration", shared.ErrDurationExceeded, http.StatusBadRequest},
		{"Unavailable", shared.ErrSourceUnavailable, http.StatusBadGateway},
		{"Download", shared.ErrDownloadFailed, http.StatusBadGateway},
		{"Tooling", shared.ErrToolNotInstalled, http.StatusServiceUnavailable},
		{"Timeout", shared.ErrSeparationTimeout, http.StatusInternalServerError},
		{"MissingOutput", shared.ErrSeparationOutputMissing, http.StatusInternalServerError},
		{"Failed", shared.ErrSeparationFailed, http.StatusInternalServerError},
		{"Unknown", sql.ErrConnDone, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, message := mapPipelineError(fmt.Errorf("wrapped: %w", tc.err))
			if status != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, status)
			}
			if message == "" {
				t.Error("expected a stable user-facing message")
			}
		})
	}
}
