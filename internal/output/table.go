package output

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/tanq16/vidown/internal/history"
	"github.com/tanq16/vidown/internal/model"
	"github.com/tanq16/vidown/internal/utils"
)

type Table struct {
	Headers []string
	Rows    [][]string
	table   *table.Table
}

func NewTable(headers []string) *Table {
	t := &Table{
		Headers: headers,
		Rows:    [][]string{},
	}
	t.table = table.New().Headers(headers...)
	t.table = t.table.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return lipgloss.NewStyle().Bold(true).Align(lipgloss.Center).Padding(0, 1)
		}
		return lipgloss.NewStyle().Padding(0, 1)
	})
	return t
}

func (t *Table) FormatTable(useMarkdown bool) string {
	for _, row := range t.Rows {
		t.table.Row(row...)
	}
	t.Rows = nil
	if useMarkdown {
		return t.table.Border(lipgloss.MarkdownBorder()).String()
	}
	return t.table.String()
}

func (t *Table) PrintTable(useMarkdown bool) {
	fmt.Println(t.FormatTable(useMarkdown))
}

func sizeCell(downloaded, total int64) string {
	switch {
	case total > 0 && downloaded > 0 && downloaded < total:
		return utils.FormatBytes(uint64(downloaded)) + " / " + utils.FormatBytes(uint64(total))
	case total > 0:
		return utils.FormatBytes(uint64(total))
	default:
		return "-"
	}
}

// JobsTable lists registry records in registry order.
func JobsTable(jobs []model.Job) *Table {
	t := NewTable([]string{"ID", "Title", "Format", "Status", "Progress", "Size", "Speed", "ETA"})
	for _, job := range jobs {
		t.Rows = append(t.Rows, []string{
			job.ShortID(),
			truncate(job.Title, 90),
			job.FormatID,
			FStatus(job.Status),
			fmt.Sprintf("%.1f%%", job.Progress),
			sizeCell(job.DownloadedBytes, job.TotalBytes),
			dash(job.Speed),
			dash(job.ETA),
		})
	}
	return t
}

// HistoryTable lists terminal outcomes, newest last.
func HistoryTable(entries []history.Entry) *Table {
	t := NewTable([]string{"ID", "Time", "Title", "Status", "Size", "Location"})
	for _, e := range entries {
		t.Rows = append(t.Rows, []string{
			shortID(e.JobID),
			e.Timestamp.Local().Format("2006-01-02 15:04"),
			truncate(e.Title, 100),
			FStatus(e.Status),
			sizeCell(0, e.TotalBytes),
			dash(e.Location),
		})
	}
	return t
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
