// Package session holds the state of one typing attempt: the passage, what
// has been typed so far, the whole-second timer and the final score.
//
// The machine moves Idle -> Running -> Finished. Loading and an error
// overlay sit on top of Idle while a passage is being fetched or after the
// fetch failed. Machine is not safe for concurrent use; the owner
// serializes calls.
package session

import (
	"time"
	"unicode/utf8"

	"github.com/iliyamo/typing-contest/internal/scoring"
)

// Phase is the coarse state of an attempt.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseRunning  Phase = "running"
	PhaseFinished Phase = "finished"
)

// State is a copy of the machine's fields.
type State struct {
	Text      string
	Input     string
	Started   bool
	Finished  bool
	StartTime time.Time
	Elapsed   int // whole seconds counted by Tick
	WPM       int
	Accuracy  int
	Loading   bool
	Err       error
}

// Phase derives the coarse state from the flags.
func (s State) Phase() Phase {
	switch {
	case s.Finished:
		return PhaseFinished
	case s.Started:
		return PhaseRunning
	default:
		return PhaseIdle
	}
}

// Result is the score of a finished attempt.
type Result struct {
	Text     string
	Input    string
	WPM      int
	Accuracy int
	Elapsed  int
}

// Transition reports what an Input call changed.
type Transition struct {
	Started  bool
	Finished bool
	Result   Result
}

// Machine is the typing-attempt state machine.
type Machine struct {
	st State
}

// New returns an idle machine waiting for its first passage.
func New() *Machine { return &Machine{} }

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() State { return m.st }

// BeginLoading clears the attempt and raises the loading overlay.
func (m *Machine) BeginLoading() {
	m.st = State{Loading: true}
}

// LoadText installs a new passage. err, when non-nil, is shown as the error
// overlay and keeps the attempt from starting; text is then a placeholder.
func (m *Machine) LoadText(text string, err error) {
	m.st.Text = text
	m.st.Input = ""
	m.st.Started = false
	m.st.Finished = false
	m.st.StartTime = time.Time{}
	m.st.Elapsed = 0
	m.st.WPM = 0
	m.st.Accuracy = 0
	m.st.Loading = false
	m.st.Err = err
}

// Input records the current value of the input box.
//
// Input is ignored once the attempt finished, while a passage is loading and
// while an error is shown. The first non-empty value starts the attempt. The
// attempt finishes as soon as the value has as many characters as the
// passage, whatever those characters are.
func (m *Machine) Input(value string, now time.Time) Transition {
	var tr Transition
	if m.st.Finished || m.st.Loading || m.st.Err != nil {
		return tr
	}
	m.st.Input = value

	if !m.st.Started && value != "" {
		m.st.Started = true
		m.st.StartTime = now
		tr.Started = true
	}

	typed := utf8.RuneCountInString(value)
	if m.st.Text != "" && typed == utf8.RuneCountInString(m.st.Text) {
		m.st.Finished = true
		m.st.Started = false
		m.st.WPM = scoring.ComputeWPM(typed, m.st.Elapsed)
		m.st.Accuracy = scoring.ComputeAccuracy(m.st.Text, value)
		tr.Finished = true
		tr.Result = Result{
			Text:     m.st.Text,
			Input:    value,
			WPM:      m.st.WPM,
			Accuracy: m.st.Accuracy,
			Elapsed:  m.st.Elapsed,
		}
	}
	return tr
}

// Tick advances the timer by one second while the attempt is running and
// reports whether it did. The counter is not reconciled with wall time.
func (m *Machine) Tick() bool {
	if !m.st.Started || m.st.Finished {
		return false
	}
	m.st.Elapsed++
	return true
}

// Running reports whether the timer should be ticking.
func (m *Machine) Running() bool { return m.st.Started && !m.st.Finished }

// Reset returns the machine to a blank idle state. The caller requests the
// next passage.
func (m *Machine) Reset() {
	m.st = State{}
}
