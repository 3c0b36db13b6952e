package cli

import (
	"context"
	"fmt"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/deepresearch/internal/client"
	"github.com/raphaelgruber/deepresearch/internal/models"
)

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// jobUpdateMsg carries one snapshot from the watch stream.
type jobUpdateMsg struct {
	job models.Job
}

// streamClosedMsg signals the watch stream ended without a terminal snapshot.
type streamClosedMsg struct{}

// progressModel is the bubbletea model for job progress.
type progressModel struct {
	jobID    string
	updates  <-chan models.Job
	job      *models.Job
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(jobID string, updates <-chan models.Job) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		jobID:    jobID,
		updates:  updates,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init starts consuming the watch stream.
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		m.nextUpdate(),
		m.progress.Init(),
	)
}

// nextUpdate blocks on the watch stream for one snapshot.
func (m progressModel) nextUpdate() tea.Cmd {
	return func() tea.Msg {
		job, ok := <-m.updates
		if !ok {
			return streamClosedMsg{}
		}
		return jobUpdateMsg{job: job}
	}
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case jobUpdateMsg:
		job := msg.job
		m.job = &job

		switch job.Status {
		case models.JobStatusCompleted:
			m.done = true
			return m, tea.Quit
		case models.JobStatusFailed:
			m.done = true
			m.err = fmt.Errorf("%s", job.Message)
			return m, tea.Quit
		}
		return m, m.nextUpdate()

	case streamClosedMsg:
		m.done = true
		m.err = fmt.Errorf("lost connection to server")
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	if m.job == nil {
		return "Waiting for job updates...\n"
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.job.Status))
	bar := m.progress.ViewAs(float64(m.job.Progress) / 100)
	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")

	line := fmt.Sprintf("%s %s %d%%", status, bar, m.job.Progress)
	if m.job.Message != "" {
		line += "  " + m.theme.hintStyle().Render(m.job.Message)
	}
	return line + "\n" + hint + "\n"
}

func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nJob %s continues in background.\nUse 'deepresearch status %s' to check on it.\n",
			m.jobID, m.jobID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Job failed: %s\n", m.err))
	}

	return m.theme.completedStyle().Render("✓ Completed") + "\n"
}

// RunJobProgress follows a job's watch stream with an interactive progress
// display. Returns nil on success or Ctrl+C (job continues server-side), an
// error if the job failed.
func RunJobProgress(ctx context.Context, c *client.Client, jobID string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, err := c.Watch(ctx, jobID)
	if err != nil {
		return fmt.Errorf("watch job: %w", err)
	}

	p := tea.NewProgram(newProgressModel(jobID, updates))
	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}
	return nil
}
