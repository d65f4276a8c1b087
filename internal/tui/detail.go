package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/errwatch/internal/explain"
)

const DetailPageID = "detail"

// DetailPage shows one record with its explanation in a scrollable modal.
type DetailPage struct {
	keys   KeyMap
	vp     viewport.Model
	result explain.Result
}

// NewDetailPage creates an empty detail page.
func NewDetailPage() *DetailPage {
	return &DetailPage{keys: DefaultKeyMap(), vp: viewport.New(0, 0)}
}

func (p *DetailPage) ID() string    { return DetailPageID }
func (p *DetailPage) Init() tea.Cmd { return nil }

// SetParams receives the explain.Result to display.
func (p *DetailPage) SetParams(params interface{}) {
	if res, ok := params.(explain.Result); ok {
		p.result = res
		p.vp.GotoTop()
	}
}

func (p *DetailPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil, nil
	}
	if key.Matches(km, p.keys.Back, p.keys.Quit) {
		return nil, &PageNav{PageID: DashboardPageID}
	}
	var cmd tea.Cmd
	p.vp, cmd = p.vp.Update(km)
	return cmd, nil
}

func (p *DetailPage) View(width, height int) string {
	modalWidth := max(width-8, 40)
	modalHeight := max(height-6, 10)
	contentWidth := modalWidth - 4
	contentHeight := modalHeight - 4

	p.vp.Width = contentWidth
	p.vp.Height = contentHeight
	p.vp.SetContent(formatResult(p.result, contentWidth))

	header := lipgloss.NewStyle().
		Width(contentWidth).
		Foreground(ColorBlue).
		Bold(true).
		Render(fmt.Sprintf("Record %d", p.result.Record.ID))
	status := helpStyle.Render(helpLine(p.keys.Up, p.keys.Down, p.keys.Back))

	modal := lipgloss.NewStyle().
		Width(modalWidth).
		Height(modalHeight).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBlue).
		Render(lipgloss.JoinVertical(lipgloss.Left, header, p.vp.View(), status))

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, modal)
}

// formatResult renders the record fields followed by the analysis sections.
func formatResult(res explain.Result, width int) string {
	rec := res.Record
	label := lipgloss.NewStyle().Foreground(ColorGray).Width(15)
	section := lipgloss.NewStyle().Foreground(ColorBlue).Bold(true)
	body := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	fmt.Fprintf(&b, "%s%s\n", label.Render("Timestamp:"), rec.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "%s%s\n", label.Render("Level:"),
		lipgloss.NewStyle().Foreground(levelColor(rec.Level)).Bold(true).Render(rec.Level))
	fmt.Fprintf(&b, "%s%dms\n\n", label.Render("Response time:"), rec.ResponseTime)
	b.WriteString(section.Render("Message") + "\n")
	b.WriteString(body.Render(rec.Message) + "\n\n")

	a := res.Analysis
	if a.Structured {
		b.WriteString(section.Render("Cause analysis") + "\n")
		b.WriteString(body.Render(a.Cause) + "\n\n")
		b.WriteString(section.Render("Remediation") + "\n")
		b.WriteString(body.Render(a.Remediation))
	} else {
		b.WriteString(section.Render("Analysis") + "\n")
		b.WriteString(body.Render(a.Text))
	}
	return b.String()
}
