package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/karaoke/internal/tasks"
)

// MsgKind enumerates all message types in the status viewer.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgStatusUpdate MsgKind = iota
	MsgStreamClosed
	MsgStreamError
)

// statusUpdateMsg is the constructor for [MsgStatusUpdate]
func statusUpdateMsg(update tasks.StatusUpdate) Msg {
	return Msg{kind: MsgStatusUpdate, data: update}
}

// streamClosedMsg is the constructor for [MsgStreamClosed]
func streamClosedMsg() Msg {
	return Msg{kind: MsgStreamClosed}
}

// streamErrorMsg is the constructor for [MsgStreamError]
func streamErrorMsg(err error) Msg {
	return Msg{kind: MsgStreamError, data: err}
}
