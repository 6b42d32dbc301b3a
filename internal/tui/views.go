package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/bankflow/internal/importer"
	"github.com/Veraticus/bankflow/internal/model"
	"github.com/Veraticus/bankflow/internal/poller"
)

// View renders the sync status.
func (m SyncModel) View() string {
	var b strings.Builder
	b.WriteString(m.theme.Title.Render("Bank sync"))
	b.WriteString("\n")

	if len(m.statuses) == 0 {
		b.WriteString(m.theme.StatusPending.Render("All accounts are up to date."))
		b.WriteString("\n")
		return b.String()
	}

	for _, s := range m.statuses {
		b.WriteString(m.renderJob(s))
		b.WriteString("\n")
	}

	switch {
	case m.err != nil:
		b.WriteString(m.theme.StatusError.Render(m.err.Error()))
		b.WriteString("\n")
	case m.done:
		b.WriteString(m.theme.StatusSuccess.Render(summary(m.statuses)))
		b.WriteString("\n")
	case m.quitting:
		b.WriteString(m.theme.StatusPending.Render("Stopped watching. Imports continue on the server."))
		b.WriteString("\n")
	default:
		b.WriteString(m.theme.Help.Render(m.help.View(m.keymap)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m SyncModel) renderJob(s importer.JobStatus) string {
	label := m.theme.Bold.Render(s.AccountID)
	bar := m.bar.ViewAs(s.Percent() / 100)

	var status string
	switch s.Outcome {
	case 0:
		status = m.spinner.View() + " " + m.theme.StatusInfo.Render(phaseText(s.Job))
	case poller.Completed:
		status = m.theme.StatusSuccess.Render(counts("Done", s.Job))
	case poller.Failed:
		msg := "Failed"
		if s.Job != nil && s.Job.ErrorMessage() != "" {
			msg = "Failed: " + s.Job.ErrorMessage()
		}
		status = m.theme.StatusError.Render(msg)
	case poller.Cancelled:
		status = m.theme.StatusPending.Render("Not watched")
	default:
		status = m.theme.StatusWarning.Render("Lost track of progress")
	}

	return lipgloss.JoinHorizontal(lipgloss.Center, label, "  ", bar, "  ", status)
}

func phaseText(job *model.ImportJob) string {
	if job == nil {
		return "Waiting..."
	}
	text := fmt.Sprintf("%s %d/%d", job.DisplayPhase(), job.Processed, job.Total)
	if eta := model.FormatETA(job.EtaMs); eta != "" {
		text += " · " + eta + " left"
	}
	return text
}

func counts(prefix string, job *model.ImportJob) string {
	if job == nil {
		return prefix
	}
	return fmt.Sprintf("%s · %d new, %d duplicates", prefix, job.Imported, job.DuplicatesCount)
}

func summary(statuses []importer.JobStatus) string {
	completed, imported := 0, 0
	for _, s := range statuses {
		if s.Outcome == poller.Completed {
			completed++
			if s.Job != nil {
				imported += s.Job.Imported
			}
		}
	}
	return fmt.Sprintf("%d of %d accounts synced, %d new transactions", completed, len(statuses), imported)
}
