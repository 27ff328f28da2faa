package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/karaoke/internal/models"
	"github.com/desertthunder/karaoke/internal/repositories"
	"github.com/desertthunder/karaoke/internal/services"
	"github.com/desertthunder/karaoke/internal/shared"
)

// OutputURLPrefix is the fixed URL prefix the server exposes media files under.
const OutputURLPrefix = "/output/"

// ConvertResult is the outcome of one conversion request.
type ConvertResult struct {
	KaraokeURL string `json:"karaokeUrl"`
	VocalsURL  string `json:"vocalsUrl"`
	IsExisting bool   `json:"isExisting,omitempty"`
}

// ConvertEngine orchestrates the conversion pipeline for one request at a time.
//
// The fetch+separate stage is serialized with an in-process lock because the
// separation scratch directory is shared; requests for videos already
// converted short-circuit before ever taking the lock.
type ConvertEngine struct {
	conversions *repositories.ConversionRepository
	fetcher     services.Fetcher
	separator   services.Separator
	broadcaster *Broadcaster
	logger      *log.Logger

	tempDir     string
	outputDir   string
	maxDuration int // seconds

	pipeline sync.Mutex // serializes fetch+separate (shared scratch dir)
	now      func() time.Time
}

// EngineOpts contains dependencies and policy for a ConvertEngine.
type EngineOpts struct {
	Conversions *repositories.ConversionRepository
	Fetcher     services.Fetcher
	Separator   services.Separator
	Broadcaster *Broadcaster
	Logger      *log.Logger
	TempDir     string
	OutputDir   string
	MaxDuration int // seconds; 0 means 600
	Now         func() time.Time
}

// NewConvertEngine creates a ConvertEngine with the provided dependencies.
func NewConvertEngine(opts EngineOpts) *ConvertEngine {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Broadcaster == nil {
		opts.Broadcaster = NewBroadcaster()
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 600
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &ConvertEngine{
		conversions: opts.Conversions,
		fetcher:     opts.Fetcher,
		separator:   opts.Separator,
		broadcaster: opts.Broadcaster,
		logger:      opts.Logger,
		tempDir:     opts.TempDir,
		outputDir:   opts.OutputDir,
		maxDuration: opts.MaxDuration,
		now:         opts.Now,
	}
}

// Broadcaster returns the status channel the engine publishes to.
func (e *ConvertEngine) Broadcaster() *Broadcaster {
	return e.broadcaster
}

// Process runs the full pipeline for one source URL.
//
// Duplicate requests resolve to the existing record without repeating any
// fetch or separation work: at most one fetch+separate effort happens per
// distinct video ID, ever. Stage failures abort the rest of the pipeline and
// carry their category sentinel for the HTTP layer to map.
func (e *ConvertEngine) Process(ctx context.Context, url string) (*ConvertResult, error) {
	jobID := shared.GenerateID()
	logger := shared.WithLogger(e.logger, "job", jobID, "url", url)

	videoID, err := services.ExtractVideoID(url)
	if err != nil {
		return nil, err
	}
	logger = shared.WithLogger(logger, "video", videoID)

	// Duplicate check before any side effects.
	if existing, err := e.conversions.FindByVideoID(videoID); err == nil {
		logger.Info("found existing conversion")
		e.publish(StatusUpdate{JobID: jobID, Message: "Found existing converted video"})
		return existingResult(existing), nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	e.publish(StatusUpdate{JobID: jobID, Message: "Starting to check video information", URL: url})

	info, err := e.fetcher.Probe(ctx, url)
	if err != nil {
		return nil, err
	}

	if info.Duration > e.maxDuration {
		return nil, fmt.Errorf("%w: %d seconds (limit %d)", shared.ErrDurationExceeded, info.Duration, e.maxDuration)
	}

	e.publish(StatusUpdate{
		JobID:    jobID,
		Message:  "Video duration",
		Duration: shared.FormatDuration(info.Duration),
	})

	// Single-flight across the shared scratch directory.
	e.pipeline.Lock()
	defer e.pipeline.Unlock()

	timestamp := e.now().UnixMilli()
	tempFile := filepath.Join(e.tempDir, fmt.Sprintf("%d.mp3", timestamp))
	karaokeFile := filepath.Join(e.outputDir, fmt.Sprintf("%d_karaoke.mp3", timestamp))

	e.publish(StatusUpdate{JobID: jobID, Message: "Starting to download YouTube video"})

	onProgress := func(message string, percent int) {
		update := StatusUpdate{JobID: jobID, Message: message}
		if percent > 0 {
			update.Progress = percent
		}
		e.publish(update)
	}

	if err := e.fetcher.FetchAudio(ctx, url, tempFile, onProgress); err != nil {
		// A failed or truncated download can still leave the temp file behind.
		e.removeFile(logger, tempFile)
		return nil, err
	}

	e.publish(StatusUpdate{JobID: jobID, Message: "YouTube video download completed"})

	vocalsFile, err := e.separator.Separate(ctx, tempFile, karaokeFile, onProgress)
	if err != nil {
		e.removeFile(logger, tempFile)
		return nil, err
	}

	record := &models.Conversion{
		VideoID:     videoID,
		Title:       info.Title,
		Duration:    info.Duration,
		KaraokePath: OutputURLPrefix + filepath.Base(karaokeFile),
		VocalsPath:  OutputURLPrefix + filepath.Base(vocalsFile),
	}

	if err := e.conversions.Create(record); err != nil {
		if errors.Is(err, shared.ErrDuplicateConversion) {
			// A concurrent request for the same video won the insert race.
			// Reconcile by re-reading the winner's record; our output files
			// are orphans now.
			logger.Info("conversion inserted concurrently, reusing existing record")
			e.removeFile(logger, karaokeFile)
			e.removeFile(logger, vocalsFile)
			e.removeFile(logger, tempFile)

			existing, readErr := e.conversions.FindByVideoID(videoID)
			if readErr != nil {
				return nil, fmt.Errorf("failed to reconcile duplicate conversion: %w", readErr)
			}
			return existingResult(existing), nil
		}
		return nil, err
	}

	// A leftover temp file never turns a successful conversion into a failure.
	e.removeFile(logger, tempFile)

	logger.Info("conversion complete", "karaoke", record.KaraokePath, "vocals", record.VocalsPath)

	return &ConvertResult{
		KaraokeURL: record.KaraokePath,
		VocalsURL:  record.VocalsPath,
	}, nil
}

// RemoveMediaFiles best-effort deletes the media files behind a conversion
// record. Called on the delete-conversion path; failures are logged only.
func (e *ConvertEngine) RemoveMediaFiles(c *models.Conversion) {
	for _, trackPath := range []string{c.KaraokePath, c.VocalsPath} {
		name := filepath.Base(trackPath)
		if name == "." || name == "/" || name == "" {
			continue
		}
		e.removeFile(e.logger, filepath.Join(e.outputDir, name))
	}
}

func (e *ConvertEngine) publish(update StatusUpdate) {
	e.broadcaster.Publish(update)
}

func (e *ConvertEngine) removeFile(logger *log.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to remove file", "path", path, "error", err)
	}
}

func existingResult(c *models.Conversion) *ConvertResult {
	return &ConvertResult{
		KaraokeURL: c.KaraokePath,
		VocalsURL:  c.VocalsPath,
		IsExisting: true,
	}
}
