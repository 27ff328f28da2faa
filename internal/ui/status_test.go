package ui

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/karaoke/internal/tasks"
)

func TestStatusModelUpdate(t *testing.T) {
	t.Run("TracksProgressAndHistory", func(t *testing.T) {
		m := NewStatusModel(context.Background(), "http://localhost:3006")

		var model tea.Model = m
		for i := 0; i < historySize+3; i++ {
			model, _ = model.Update(statusUpdateMsg(tasks.StatusUpdate{
				Message:  fmt.Sprintf("step %d", i),
				Progress: i * 5,
			}))
		}

		got := model.(*StatusModel)
		if len(got.history) != historySize {
			t.Errorf("expected history capped at %d, got %d", historySize, len(got.history))
		}
		if got.history[0].Message != "step 3" {
			t.Errorf("expected oldest entries evicted, got %q", got.history[0].Message)
		}
		if got.percent != (historySize+2)*5 {
			t.Errorf("expected latest progress retained, got %d", got.percent)
		}
	})

	t.Run("ZeroProgressKeepsPercent", func(t *testing.T) {
		m := NewStatusModel(context.Background(), "http://localhost:3006")

		var model tea.Model = m
		model, _ = model.Update(statusUpdateMsg(tasks.StatusUpdate{Message: "Downloading", Progress: 40}))
		model, _ = model.Update(statusUpdateMsg(tasks.StatusUpdate{Message: "Download completed"}))

		if got := model.(*StatusModel); got.percent != 40 {
			t.Errorf("expected percent retained through non-progress events, got %d", got.percent)
		}
	})

	t.Run("QuitKeys", func(t *testing.T) {
		m := NewStatusModel(context.Background(), "http://localhost:3006")

		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
		if cmd == nil {
			t.Fatal("expected quit command")
		}
		if msg := cmd(); msg != tea.Quit() {
			t.Errorf("expected tea.Quit, got %T", msg)
		}
	})

	t.Run("StreamClosed", func(t *testing.T) {
		m := NewStatusModel(context.Background(), "http://localhost:3006")

		model, _ := m.Update(streamClosedMsg())
		if got := model.(*StatusModel); !got.closed {
			t.Error("expected model marked closed")
		}
	})
}

func TestStreamStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"message\":\"Downloading YouTube video\",\"progress\":42}\n\n")
		fmt.Fprint(w, "not an event line\n")
		fmt.Fprint(w, "data: {\"message\":\"Audio separation completed\",\"progress\":100}\n\n")
	}))
	defer server.Close()

	updates := make(chan tasks.StatusUpdate, 10)
	if err := StreamStatus(context.Background(), server.URL, updates); err != nil {
		t.Fatalf("failed to stream status: %v", err)
	}

	var got []tasks.StatusUpdate
	for update := range updates {
		got = append(got, update)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 decoded events, got %d", len(got))
	}
	if got[0].Progress != 42 || got[1].Message != "Audio separation completed" {
		t.Errorf("unexpected events %+v", got)
	}
}
