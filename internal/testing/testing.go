// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/karaoke/internal/services"
)

// FakeFetcher is a test double for [services.Fetcher] that records calls.
type FakeFetcher struct {
	Info       *services.VideoInfo
	ProbeErr   error
	FetchErr   error
	Partial    []byte // written to destPath before FetchErr is returned
	Progress   []int  // percentages emitted during FetchAudio
	ProbeCalls int
	FetchCalls int
}

func (f *FakeFetcher) Probe(ctx context.Context, url string) (*services.VideoInfo, error) {
	f.ProbeCalls++
	if f.ProbeErr != nil {
		return nil, f.ProbeErr
	}
	if f.Info == nil {
		return &services.VideoInfo{Title: "Test Video", Duration: 212}, nil
	}
	return f.Info, nil
}

func (f *FakeFetcher) FetchAudio(ctx context.Context, url, destPath string, onProgress services.ProgressFunc) error {
	f.FetchCalls++
	if f.FetchErr != nil {
		if len(f.Partial) > 0 {
			os.WriteFile(destPath, f.Partial, 0644)
		}
		return f.FetchErr
	}
	if onProgress != nil {
		for _, percent := range f.Progress {
			onProgress("Downloading YouTube video", percent)
		}
	}
	return nil
}

// FakeSeparator is a test double for [services.Separator].
type FakeSeparator struct {
	Err        error
	Milestones []services.Milestone // forwarded before returning
	Calls      int
}

func (s *FakeSeparator) Separate(ctx context.Context, inputPath, karaokeDest string, onProgress services.ProgressFunc) (string, error) {
	s.Calls++
	if s.Err != nil {
		return "", s.Err
	}
	if onProgress != nil {
		for _, m := range s.Milestones {
			onProgress(m.Message, m.Percent)
		}
		onProgress("Audio separation completed", 100)
	}
	return services.VocalsPath(karaokeDest), nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}
