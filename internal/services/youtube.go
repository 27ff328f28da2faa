package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/karaoke/internal/shared"
)

// videoIDPatterns are the recognized YouTube URL shapes, tried in order.
// Watch, short, and embed links first, then the music subdomain's shapes.
// Each captures the 11-character video ID.
var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:https?://)?(?:www\.)?(?:youtube\.com/(?:[^/\n\s]+/\S+/|(?:v|e(?:mbed)?)/|\S*?[?&]v=)|youtu\.be/)([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`(?:https?://)?(?:www\.)?(?:music\.youtube\.com/(?:watch\?v=|embed/|v/)?)([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`(?:https?://)?(?:music\.youtube\.com/.*?v=)([a-zA-Z0-9_-]{11})`),
}

// ExtractVideoID parses a source URL into the canonical YouTube video ID.
//
// The first pattern that matches wins; a URL matching none of the known
// shapes fails with [shared.ErrInvalidSourceURL]. Pure and deterministic.
func ExtractVideoID(url string) (string, error) {
	for _, pattern := range videoIDPatterns {
		if match := pattern.FindStringSubmatch(url); match != nil {
			return match[1], nil
		}
	}

	return "", fmt.Errorf("%q: %w", url, shared.ErrInvalidSourceURL)
}

// downloadProgressPattern matches yt-dlp's --newline progress lines,
// e.g. "[download]  42.7% of 3.52MiB at 1.21MiB/s ETA 00:02".
var downloadProgressPattern = regexp.MustCompile(`\[download\]\s+(\d+(?:\.\d+)?)%`)

// YTDLPService invokes the yt-dlp binary for metadata probes and audio downloads.
type YTDLPService struct {
	binary string
	logger *log.Logger
}

// NewYTDLPService creates a fetcher shelling out to the given yt-dlp binary.
func NewYTDLPService(binary string, logger *log.Logger) *YTDLPService {
	if binary == "" {
		binary = "yt-dlp"
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &YTDLPService{binary: binary, logger: logger}
}

// Probe queries video metadata without downloading.
//
// Any tool failure (network, removed video, geo or age restriction) maps to
// [shared.ErrSourceUnavailable] with the tool's stderr preserved for
// diagnostics.
func (s *YTDLPService) Probe(ctx context.Context, url string) (*VideoInfo, error) {
	cmd := exec.CommandContext(ctx, s.binary,
		"--dump-single-json",
		"--no-warnings",
		"--no-playlist",
		"--prefer-free-formats",
		url,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", shared.ErrSourceUnavailable, detail)
	}

	var info VideoInfo
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return nil, fmt.Errorf("%w: failed to parse tool output: %v", shared.ErrSourceUnavailable, err)
	}

	return &info, nil
}

// FetchAudio downloads and transcodes the best audio track to an mp3 at destPath.
//
// Percentage lines from the tool are forwarded to onProgress as they arrive;
// a non-zero exit or a missing output file after claimed success fails with
// [shared.ErrDownloadFailed].
func (s *YTDLPService) FetchAudio(ctx context.Context, url, destPath string, onProgress ProgressFunc) error {
	cmd := exec.CommandContext(ctx, s.binary,
		"--extract-audio",
		"--audio-format", "mp3",
		"--output", destPath,
		"--no-playlist",
		"--no-warnings",
		"--newline",
		"--retries", "3",
		url,
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrDownloadFailed, err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrDownloadFailed, err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if percent, ok := ParseDownloadProgress(line); ok && onProgress != nil {
			onProgress("Downloading YouTube video", percent)
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("failed to read download output", "error", err)
	}

	if err := cmd.Wait(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return fmt.Errorf("%w: %s", shared.ErrDownloadFailed, detail)
	}

	// The tool exiting zero does not guarantee the file exists.
	info, err := os.Stat(destPath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: output file missing at %s", shared.ErrDownloadFailed, destPath)
	}

	return nil
}

// ParseDownloadProgress extracts the percentage from a yt-dlp progress line.
func ParseDownloadProgress(line string) (int, bool) {
	match := downloadProgressPattern.FindStringSubmatch(line)
	if match == nil {
		return 0, false
	}

	percent, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}

	return int(percent), true
}
