package services

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/karaoke/internal/shared"
	"golang.org/x/sync/errgroup"
)

// Milestone is a coarse progress checkpoint inferred from tool diagnostics.
type Milestone struct {
	Message string
	Percent int
}

// MilestoneMatcher recognizes progress checkpoints in a tool's diagnostic
// output. Matching is a best-effort heuristic, not authoritative; it is an
// interface so the strategy can be swapped if the tool's output changes.
type MilestoneMatcher interface {
	Match(line string) (Milestone, bool)
}

// demucsMilestones matches the two checkpoints demucs prints on stderr:
// stem separation done (~50%) and mp3 post-processing (~75%).
type demucsMilestones struct{}

func (demucsMilestones) Match(line string) (Milestone, bool) {
	switch {
	case strings.Contains(line, "Separated track"):
		return Milestone{Message: "Voice separation completed", Percent: 50}, true
	case strings.Contains(line, "Applying effects"):
		return Milestone{Message: "Processing audio effects", Percent: 75}, true
	}
	return Milestone{}, false
}

// DemucsService invokes the demucs binary for two-stem source separation.
type DemucsService struct {
	binary  string
	model   string
	tempDir string
	timeout time.Duration
	matcher MilestoneMatcher
	logger  *log.Logger
}

// DemucsOpts configures a DemucsService.
type DemucsOpts struct {
	Binary  string
	Model   string
	TempDir string
	Timeout time.Duration
	Matcher MilestoneMatcher
	Logger  *log.Logger
}

// NewDemucsService creates a separator shelling out to demucs.
func NewDemucsService(opts DemucsOpts) *DemucsService {
	if opts.Binary == "" {
		opts.Binary = "demucs"
	}
	if opts.Model == "" {
		opts.Model = "htdemucs"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Minute
	}
	if opts.Matcher == nil {
		opts.Matcher = demucsMilestones{}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &DemucsService{
		binary:  opts.Binary,
		model:   opts.Model,
		tempDir: opts.TempDir,
		timeout: opts.Timeout,
		matcher: opts.Matcher,
		logger:  opts.Logger,
	}
}

// ScratchDir returns the dedicated working directory for separation runs.
// It is exclusively owned and cleared by Separate for the lifetime of one call.
func (s *DemucsService) ScratchDir() string {
	return filepath.Join(s.tempDir, "separated")
}

// Separate splits inputPath into an instrumental stem written to karaokeDest
// and a vocals stem written next to it, returning the vocals path.
//
// Availability is checked before any file I/O so a missing tool never leaves
// partial state behind. Both stems are copied (not moved) out of the scratch
// directory before it is removed; scratch cleanup failure degrades to litter
// rather than data loss.
func (s *DemucsService) Separate(ctx context.Context, inputPath, karaokeDest string, onProgress ProgressFunc) (string, error) {
	if _, err := lookPath(s.binary); err != nil {
		return "", fmt.Errorf("%w: %q not found in PATH", shared.ErrToolNotInstalled, s.binary)
	}

	// Guarantee no stale output from a prior run is misattributed to this one.
	scratch := s.ScratchDir()
	if err := os.RemoveAll(scratch); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: failed to clear scratch directory: %v", shared.ErrSeparationFailed, err)
	}

	if onProgress != nil {
		onProgress("Starting audio separation processing...", -1)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, s.binary,
		inputPath,
		"-n", s.model,
		"--two-stems=vocals",
		"--mp3",
		"--out", scratch,
	)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrSeparationFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrSeparationFailed, err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrSeparationFailed, err)
	}

	// Drain both streams concurrently with the wait; all diagnostic output is
	// buffered in full for inclusion in any failure report.
	var diagnostics bytes.Buffer
	var stdoutBuf bytes.Buffer
	g := new(errgroup.Group)
	g.Go(func() error {
		s.drainDiagnostics(stderr, &diagnostics, onProgress)
		return nil
	})
	g.Go(func() error {
		s.drainDiagnostics(stdout, &stdoutBuf, nil)
		return nil
	})

	// Both drains hit EOF once the process exits (or is killed on timeout);
	// join them before reaping the process.
	g.Wait()
	waitErr := cmd.Wait()

	if waitErr != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%w after %s", shared.ErrSeparationTimeout, s.timeout)
		}
		detail := strings.TrimSpace(diagnostics.String() + stdoutBuf.String())
		return "", fmt.Errorf("%w: %v\n%s", shared.ErrSeparationFailed, waitErr, detail)
	}

	// Exit zero does not guarantee both stems exist.
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	stemDir := filepath.Join(scratch, s.model, base)
	karaokeStem := filepath.Join(stemDir, "no_vocals.mp3")
	vocalsStem := filepath.Join(stemDir, "vocals.mp3")

	for _, stem := range []string{karaokeStem, vocalsStem} {
		if _, err := os.Stat(stem); err != nil {
			return "", fmt.Errorf("%w: expected %s", shared.ErrSeparationOutputMissing, stem)
		}
	}

	vocalsDest := VocalsPath(karaokeDest)
	if err := copyFile(karaokeStem, karaokeDest); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrSeparationFailed, err)
	}
	if err := copyFile(vocalsStem, vocalsDest); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrSeparationFailed, err)
	}

	if onProgress != nil {
		onProgress("Audio separation completed", 100)
	}

	// Copy-then-delete: losing the scratch cleanup only leaves litter.
	if err := os.RemoveAll(scratch); err != nil {
		s.logger.Warn("failed to clean up scratch directory", "path", scratch, "error", err)
	}

	return vocalsDest, nil
}

// drainDiagnostics consumes a diagnostic stream line by line, buffering
// everything and forwarding recognized milestones.
func (s *DemucsService) drainDiagnostics(r io.Reader, buf *bytes.Buffer, onProgress ProgressFunc) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')

		if onProgress == nil {
			continue
		}
		if milestone, ok := s.matcher.Match(line); ok {
			onProgress(milestone.Message, milestone.Percent)
		}
	}
}

// VocalsPath derives the vocals destination from a karaoke destination path.
func VocalsPath(karaokePath string) string {
	if strings.HasSuffix(karaokePath, "_karaoke.mp3") {
		return strings.TrimSuffix(karaokePath, "_karaoke.mp3") + "_vocals.mp3"
	}
	ext := filepath.Ext(karaokePath)
	return strings.TrimSuffix(karaokePath, ext) + "_vocals" + ext
}

// copyFile copies src to dst, creating parent directories as needed.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}
