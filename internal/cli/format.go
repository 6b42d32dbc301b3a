package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/bankflow/internal/model"
)

const titleWidth = 32

// FormatAmount renders an amount with its currency, colored by sign.
func FormatAmount(txn model.Transaction) string {
	text := txn.Amount.StringFixed(2)
	if txn.OriginalCurrency != "" {
		text += " " + txn.OriginalCurrency
	}
	if txn.Type == "income" {
		return IncomeStyle.Render(text)
	}
	return ExpenseStyle.Render(text)
}

// FormatTransactions renders transactions as a table, newest first as given.
func FormatTransactions(txns []model.Transaction) string {
	if len(txns) == 0 {
		return SubtleStyle.Render("No transactions.")
	}

	headers := []string{"#", "ID", "DATE", "TITLE", "AMOUNT", "CATEGORY", "SOURCE"}
	rows := make([][]string, 0, len(txns))
	for _, t := range txns {
		category := t.CategoryName()
		if category == "" {
			category = SubtleStyle.Render("-")
		}
		legacy := SubtleStyle.Render("-")
		if n := t.LegacyID(); n > 0 {
			legacy = strconv.Itoa(n)
		}
		rows = append(rows, []string{
			legacy,
			t.ID,
			t.Date,
			truncate(t.Title, titleWidth),
			FormatAmount(t),
			category,
			string(t.Source),
		})
	}
	return renderTable(headers, rows)
}

// FormatCategories renders custom categories as a table.
func FormatCategories(cats []model.CustomCategory) string {
	if len(cats) == 0 {
		return SubtleStyle.Render("No custom categories.")
	}
	rows := make([][]string, 0, len(cats))
	for _, c := range cats {
		rows = append(rows, []string{c.ID, c.Name, c.IconPath})
	}
	return renderTable([]string{"ID", "NAME", "ICON"}, rows)
}

// FormatInstitutions renders institutions as a table.
func FormatInstitutions(insts []model.Institution) string {
	if len(insts) == 0 {
		return SubtleStyle.Render("No institutions.")
	}
	rows := make([][]string, 0, len(insts))
	for _, i := range insts {
		rows = append(rows, []string{i.ID, i.Name, strings.Join(i.Countries, ",")})
	}
	return renderTable([]string{"ID", "NAME", "COUNTRIES"}, rows)
}

// FormatAge renders how long ago something happened.
func FormatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	b.WriteString(TableHeaderStyle.Render(renderRow(headers, widths)))
	b.WriteString("\n")
	for _, row := range rows {
		b.WriteString(renderRow(row, widths))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderRow(cells []string, widths []int) string {
	rendered := make([]string, len(cells))
	for i, cell := range cells {
		rendered[i] = TableCellStyle.Render(cell + strings.Repeat(" ", widths[i]-lipgloss.Width(cell)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
