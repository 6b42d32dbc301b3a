package tui

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/bankflow/internal/importer"
	"github.com/Veraticus/bankflow/internal/model"
	"github.com/Veraticus/bankflow/internal/tui/themes"
)

const (
	defaultBarWidth = 40
	maxBarWidth     = 60
)

// SyncModel shows the progress of every job an auto sync started.
type SyncModel struct {
	err      error
	theme    themes.Theme
	keymap   KeyMap
	help     help.Model
	spinner  spinner.Model
	bar      progress.Model
	statuses []importer.JobStatus
	width    int
	done     bool
	quitting bool
}

// NewSyncModel creates a view for the given jobs.
func NewSyncModel(jobs []model.StartedJob, theme themes.Theme) SyncModel {
	statuses := make([]importer.JobStatus, len(jobs))
	for i, j := range jobs {
		statuses[i] = importer.JobStatus{AccountID: j.AccountID, JobID: j.JobID}
	}

	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	s.Style = theme.StatusInfo

	return SyncModel{
		theme:    theme,
		keymap:   DefaultKeyMap(),
		help:     help.New(),
		spinner:  s,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(defaultBarWidth)),
		statuses: statuses,
	}
}

// Init starts the spinner.
func (m SyncModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages.
func (m SyncModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keymap.Quit) || key.Matches(msg, m.keymap.ForceQuit) {
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = min(max(msg.Width-40, 10), maxBarWidth)
		m.help.Width = msg.Width
	case statusMsg:
		m.statuses = msg
	case watchDoneMsg:
		m.done = true
		m.err = msg.err
		if msg.statuses != nil {
			m.statuses = msg.statuses
		}
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// Statuses returns the last known job statuses.
func (m SyncModel) Statuses() []importer.JobStatus {
	return m.statuses
}

// Finished reports whether every job has stopped being watched.
func (m SyncModel) Finished() bool {
	for _, s := range m.statuses {
		if !s.Finished() {
			return false
		}
	}
	return true
}
