package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func loaded(text string) *Machine {
	m := New()
	m.BeginLoading()
	m.LoadText(text, nil)
	return m
}

func TestMachine_StartsOnFirstNonEmptyInput(t *testing.T) {
	m := loaded("hello")

	tr := m.Input("", t0)
	assert.False(t, tr.Started)
	assert.Equal(t, PhaseIdle, m.Snapshot().Phase())

	tr = m.Input("h", t0)
	assert.True(t, tr.Started)
	assert.Equal(t, PhaseRunning, m.Snapshot().Phase())
	assert.Equal(t, t0, m.Snapshot().StartTime)

	tr = m.Input("he", t0.Add(time.Second))
	assert.False(t, tr.Started, "start happens once per attempt")
	assert.Equal(t, t0, m.Snapshot().StartTime)
}

func TestMachine_FinishesOnLengthOnly(t *testing.T) {
	m := loaded("abc")
	m.Input("x", t0)
	m.Tick()

	tr := m.Input("xyz", t0)
	require.True(t, tr.Finished)
	assert.Equal(t, 0, tr.Result.Accuracy)
	assert.Equal(t, 36, tr.Result.WPM)
	assert.Equal(t, PhaseFinished, m.Snapshot().Phase())
}

func TestMachine_FinishesOnCharacterCount(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		input    string
		accuracy int
		wpm      int
	}{
		{"ascii apostrophe for a curly one", "It’s ok", "It's ok", 86, 14},
		{"accent on the last character", "abc", "abé", 67, 6},
		{"dash typed exactly", "a—b", "a—b", 100, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := loaded(tt.text)
			m.Input(tt.input[:1], t0)
			for i := 0; i < 6; i++ {
				m.Tick()
			}
			tr := m.Input(tt.input, t0)
			require.True(t, tr.Finished)
			assert.Equal(t, tt.accuracy, tr.Result.Accuracy)
			assert.Equal(t, tt.wpm, tr.Result.WPM)
		})
	}

	t.Run("multibyte passage is not finished early", func(t *testing.T) {
		m := loaded("ééé")
		tr := m.Input("abcdef", t0)
		assert.False(t, tr.Finished, "six characters against a three character passage")
		assert.Equal(t, PhaseRunning, m.Snapshot().Phase())
	})
}

func TestMachine_ScoreUsesTickedSeconds(t *testing.T) {
	text := "The quick fox"
	m := loaded(text)
	m.Input("T", t0)
	for i := 0; i < 6; i++ {
		require.True(t, m.Tick())
	}

	tr := m.Input("The quicc fox", t0.Add(time.Hour))
	require.True(t, tr.Finished)
	assert.Equal(t, 92, tr.Result.Accuracy)
	assert.Equal(t, 26, tr.Result.WPM)
	assert.Equal(t, 6, tr.Result.Elapsed)

	assert.False(t, m.Tick(), "timer is frozen after finish")
	assert.Equal(t, 6, m.Snapshot().Elapsed)
}

func TestMachine_ZeroSecondFinish(t *testing.T) {
	m := loaded("a")

	tr := m.Input("a", t0)
	assert.True(t, tr.Started)
	assert.True(t, tr.Finished)
	assert.Equal(t, 0, tr.Result.WPM)
	assert.Equal(t, 100, tr.Result.Accuracy)
}

func TestMachine_IgnoresInput(t *testing.T) {
	t.Run("while loading", func(t *testing.T) {
		m := New()
		m.BeginLoading()
		tr := m.Input("a", t0)
		assert.False(t, tr.Started)
		assert.Empty(t, m.Snapshot().Input)
	})
	t.Run("while an error is shown", func(t *testing.T) {
		m := New()
		m.LoadText("Error loading text. Please restart.", errors.New("timeout"))
		tr := m.Input("E", t0)
		assert.False(t, tr.Started)
		assert.False(t, m.Running())
	})
	t.Run("after finish", func(t *testing.T) {
		m := loaded("ab")
		m.Input("ab", t0)
		tr := m.Input("abc", t0)
		assert.False(t, tr.Finished)
		assert.Equal(t, "ab", m.Snapshot().Input)
	})
	t.Run("no passage never finishes", func(t *testing.T) {
		m := New()
		m.LoadText("", nil)
		tr := m.Input("", t0)
		assert.False(t, tr.Finished)
	})
}

func TestMachine_TickOnlyWhileRunning(t *testing.T) {
	m := loaded("hello")
	assert.False(t, m.Tick())
	m.Input("h", t0)
	assert.True(t, m.Tick())
	assert.True(t, m.Tick())
	assert.Equal(t, 2, m.Snapshot().Elapsed)
}

func TestMachine_ResetIsIdempotent(t *testing.T) {
	m := loaded("hello")
	m.Input("he", t0)
	m.Tick()

	m.Reset()
	once := m.Snapshot()
	m.Reset()
	assert.Equal(t, once, m.Snapshot())
	assert.Equal(t, PhaseIdle, once.Phase())
	assert.Zero(t, once.Elapsed)
	assert.Empty(t, once.Text)
}

func TestMachine_LoadTextClearsAttempt(t *testing.T) {
	m := loaded("abc")
	m.Input("a", t0)
	m.Tick()

	m.LoadText("next", nil)
	st := m.Snapshot()
	assert.Equal(t, "next", st.Text)
	assert.Empty(t, st.Input)
	assert.False(t, st.Started)
	assert.Zero(t, st.Elapsed)
	assert.False(t, st.Loading)
	assert.NoError(t, st.Err)
}
