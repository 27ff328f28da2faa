package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Conversion pipeline errors
	ErrInvalidSourceURL        = fmt.Errorf("invalid YouTube video URL")
	ErrDurationExceeded        = fmt.Errorf("video duration exceeds limit")
	ErrSourceUnavailable       = fmt.Errorf("failed to fetch video information")
	ErrDownloadFailed          = fmt.Errorf("failed to download YouTube video")
	ErrToolNotInstalled        = fmt.Errorf("separation engine not installed")
	ErrSeparationFailed        = fmt.Errorf("audio separation failed")
	ErrSeparationTimeout       = fmt.Errorf("audio separation timed out")
	ErrSeparationOutputMissing = fmt.Errorf("separated audio files not found")

	// Store errors
	ErrDuplicateConversion = fmt.Errorf("conversion already exists")
	ErrDuplicateMembership = fmt.Errorf("song already in playlist")
	ErrNotFound            = fmt.Errorf("not found")
	ErrInvalidName         = fmt.Errorf("playlist name cannot be empty")
)
