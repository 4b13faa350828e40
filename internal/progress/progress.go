// Package progress defines the event type the engine's frontends use to
// report user-facing progress. Components emit events through a callback
// supplied at construction; the CLIs print them and the TUI appends them
// to its log view.
package progress

// Level indicates the severity/type of a progress message.
type Level int

const (
	LevelInfo Level = iota
	LevelVerbose
	LevelWarning
	LevelError
	LevelSuccess
)

// Event represents a progress update.
type Event struct {
	Message string
	Level   Level
}
