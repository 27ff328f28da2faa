package services

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// VideoInfo holds the metadata returned by a probe, without downloading.
type VideoInfo struct {
	Title    string `json:"title"`
	Duration int    `json:"duration"` // Duration in seconds
}

// ProgressFunc receives best-effort progress callbacks from a tool driver.
// Percent is 0-100; message is a short human-readable note.
type ProgressFunc func(message string, percent int)

// Fetcher defines metadata probing and audio download against a source URL.
type Fetcher interface {
	// Probe queries title and duration without downloading.
	Probe(ctx context.Context, url string) (*VideoInfo, error)

	// FetchAudio downloads and transcodes the best audio track to destPath.
	// Progress callbacks are best-effort; some tool versions report none.
	FetchAudio(ctx context.Context, url, destPath string, onProgress ProgressFunc) error
}

// Separator splits an audio file into instrumental and vocal stems.
type Separator interface {
	// Separate writes the instrumental stem to karaokeDest and returns the
	// path of the vocals stem it wrote alongside it.
	Separate(ctx context.Context, inputPath, karaokeDest string, onProgress ProgressFunc) (string, error)
}

// Requirement defines an external binary the service relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// RequirementStatus reports the availability of one external binary.
type RequirementStatus struct {
	Requirement
	Available bool
	Detail    string
}

// DefaultRequirements returns the tool set the pipeline shells out to.
func DefaultRequirements(ytdlp, demucs string) []Requirement {
	return []Requirement{
		{Name: "yt-dlp", Command: ytdlp, Description: "metadata probe and audio download"},
		{Name: "demucs", Command: demucs, Description: "two-stem source separation"},
		{Name: "ffmpeg", Command: "ffmpeg", Description: "audio transcoding (used by yt-dlp)", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []RequirementStatus {
	results := make([]RequirementStatus, 0, len(requirements))
	for _, req := range requirements {
		status := RequirementStatus{Requirement: req}
		cmd := strings.TrimSpace(req.Command)
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := lookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// lookPath is swapped in tests to fake tool availability.
var lookPath = exec.LookPath
