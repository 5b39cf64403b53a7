package progress

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelViewEmptyWhenDone(t *testing.T) {
	m := model{done: true}
	assert.Equal(t, "", m.View())
}

func TestModelViewRendersBarAndLabelWhenNotDone(t *testing.T) {
	m := model{bar: progress.New(), fraction: 0.5, label: "5 / 10 blocks relocated"}
	view := m.View()
	assert.Contains(t, view, "5 / 10 blocks relocated")
}

func TestModelUpdateFrameMsgAdvancesFractionAndLabel(t *testing.T) {
	frames := make(chan frameMsg, 1)
	m := model{frames: frames}

	updated, cmd := m.Update(frameMsg{fraction: 0.25, label: "1 / 4 blocks relocated"})
	um := updated.(model)
	assert.Equal(t, 0.25, um.fraction)
	assert.Equal(t, "1 / 4 blocks relocated", um.label)
	assert.NotNil(t, cmd)
}

func TestModelUpdateDoneMsgQuits(t *testing.T) {
	m := model{}
	updated, cmd := m.Update(doneMsg{})
	um := updated.(model)
	assert.True(t, um.done)
	require.NotNil(t, cmd)
}

func TestModelUpdateWindowSizeMsgResizesBar(t *testing.T) {
	m := model{bar: progress.New()}
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 84})
	um := updated.(model)
	assert.Equal(t, 80, um.bar.Width)
}

func TestWaitForFrameReturnsClosedChannelAsDone(t *testing.T) {
	frames := make(chan frameMsg)
	close(frames)
	msg := waitForFrame(frames)()
	_, ok := msg.(doneMsg)
	assert.True(t, ok)
}

func TestWaitForFrameForwardsPushedFrame(t *testing.T) {
	frames := make(chan frameMsg, 1)
	frames <- frameMsg{fraction: 0.75, label: "3 / 4 blocks relocated"}

	msg := waitForFrame(frames)()
	fm, ok := msg.(frameMsg)
	require.True(t, ok)
	assert.Equal(t, 0.75, fm.fraction)
}

func TestReportComputesFractionAndLabel(t *testing.T) {
	r := &Reporter{frames: make(chan frameMsg, 1)}
	r.Report(3, 10)

	got := <-r.frames
	assert.InDelta(t, 0.7, got.fraction, 0.0001)
	assert.Equal(t, "7 / 10 blocks relocated", got.label)
}

func TestReportClampsFractionToOne(t *testing.T) {
	r := &Reporter{frames: make(chan frameMsg, 1)}
	r.Report(7, 5)
	// remaining(7) overshoots total(5) (shouldn't normally happen); the
	// fraction must still be clamped to 1.
	got := <-r.frames
	assert.LessOrEqual(t, got.fraction, 1.0)
}

func TestReportIsNoopWhenTotalIsZero(t *testing.T) {
	r := &Reporter{frames: make(chan frameMsg, 1)}
	r.Report(0, 0)
	select {
	case <-r.frames:
		t.Fatal("expected no frame to be queued for a zero total")
	default:
	}
}

func TestReportDropsFrameWhenChannelIsFull(t *testing.T) {
	r := &Reporter{frames: make(chan frameMsg, 1)}
	r.Report(9, 10)
	r.Report(5, 10) // must not block even though the buffer is already full

	got := <-r.frames
	assert.Equal(t, "1 / 10 blocks relocated", got.label)
}
