package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// Renderer formats reports for a terminal. Plain output is the zero value.
type Renderer struct {
	Styled bool
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#A78BFA")).
			PaddingBottom(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#45475A")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().Bold(true).Width(16)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#34D399"))
)

// Render returns the report as a block of text.
func (rr Renderer) Render(r *Report) string {
	rows := [][2]string{
		{"Run", r.RunID},
		{"Dataset", r.Dataset},
		{"Parameters", humanize.Comma(int64(r.ParamCount))},
		{"Training", fmt.Sprintf("%d batches, %d steps, %s, score %.4f",
			r.Batches, r.Steps, r.Duration.Round(time.Millisecond), r.Score)},
		{"Avg forward", fmt.Sprintf("%.3f ms x %d", r.AvgForwardMillis, r.ForwardCount)},
		{"Avg backward", fmt.Sprintf("%.3f ms x %d", r.AvgBackwardMillis, r.BackwardCount)},
	}
	if !r.FinishedAt.IsZero() {
		rows = append(rows, [2]string{"Finished", humanize.Time(r.FinishedAt)})
	}

	if !rr.Styled {
		var sb strings.Builder
		fmt.Fprintf(&sb, "== %s ==\n", r.Model)
		for _, row := range rows {
			fmt.Fprintf(&sb, "%-14s %s\n", row[0]+":", row[1])
		}
		if r.Summary != "" {
			sb.WriteString(strings.TrimRight(r.Summary, "\n"))
			sb.WriteByte('\n')
		}
		return sb.String()
	}

	var body strings.Builder
	for i, row := range rows {
		if i > 0 {
			body.WriteByte('\n')
		}
		body.WriteString(labelStyle.Render(row[0] + ":"))
		body.WriteString(valueStyle.Render(row[1]))
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Benchmark: " + r.Model))
	sb.WriteString("\n")
	sb.WriteString(boxStyle.Render(body.String()))
	sb.WriteString("\n")
	if r.Summary != "" {
		sb.WriteString(strings.TrimRight(r.Summary, "\n"))
		sb.WriteByte('\n')
	}
	return sb.String()
}
