// Package progress renders the relocation scheduler's progress as a
// terminal bar, in the teacher's bubbletea/bubbles/lipgloss idiom
// (_examples/dsmmcken-dh-cli/src/internal/tui/screens/doctor.go's use of a
// bubbles component as the model for a small, single-purpose tea.Program).
package progress

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))

// tickMsg asks the model to repaint at the latest reported fraction.
type tickMsg struct{}

type frameMsg struct {
	fraction float64
	label    string
}

type doneMsg struct{}

// model is the bubbletea model backing the relocation progress bar.
type model struct {
	bar      progress.Model
	fraction float64
	label    string
	done     bool
	frames   <-chan frameMsg
}

func (m model) Init() tea.Cmd { return waitForFrame(m.frames) }

func waitForFrame(frames <-chan frameMsg) tea.Cmd {
	return func() tea.Msg {
		f, ok := <-frames
		if !ok {
			return doneMsg{}
		}
		return f
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = msg.Width - 4
		return m, nil
	case frameMsg:
		m.fraction = msg.fraction
		m.label = msg.label
		return m, waitForFrame(m.frames)
	case doneMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("\n  %s\n  %s\n\n", m.bar.ViewAs(m.fraction), labelStyle.Render(m.label))
}

// Reporter streams relocation-scheduler progress frames to an in-process
// bubbletea program. Report is safe to call from the scheduler's run loop;
// Close must be called once the run completes (successfully or not) so the
// program exits and the terminal is restored.
type Reporter struct {
	frames  chan frameMsg
	program *tea.Program
	done    chan struct{}
}

// NewReporter starts a bubbletea program rendering a progress bar to out.
// total is not used: each Report call supplies the total its fraction is
// computed against.
func NewReporter(out io.Writer, total uint64) *Reporter {
	r := &Reporter{
		frames: make(chan frameMsg, 1),
		done:   make(chan struct{}),
	}
	m := model{bar: progress.New(progress.WithDefaultGradient()), frames: r.frames}
	r.program = tea.NewProgram(m, tea.WithOutput(out))
	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	_ = total
	return r
}

// Report pushes a new (remaining, total) sample; fraction is computed as
// (total-remaining)/total and clamped to [0,1].
func (r *Reporter) Report(remaining, total uint64) {
	if total == 0 {
		return
	}
	done := total - remaining
	fraction := float64(done) / float64(total)
	if fraction > 1 {
		fraction = 1
	}
	select {
	case r.frames <- frameMsg{fraction: fraction, label: fmt.Sprintf("%d / %d blocks relocated", done, total)}:
	default:
		// drop the stale frame rather than block the scheduler on a slow terminal
	}
}

// Close stops accepting frames and waits for the terminal program to exit.
func (r *Reporter) Close() {
	close(r.frames)
	<-r.done
}
