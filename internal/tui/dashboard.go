package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/errwatch/internal/aggregate"
	"github.com/tinytelemetry/errwatch/internal/dashboard"
	"github.com/tinytelemetry/errwatch/internal/explain"
	"github.com/tinytelemetry/errwatch/internal/model"
)

const (
	DashboardPageID = "dashboard"

	explainTimeout = 90 * time.Second
)

// Config controls polling and the aggregation shown on the dashboard.
type Config struct {
	UpdateInterval time.Duration
	RecentLimit    int
	Window         time.Duration
	Bucket         time.Duration
	Lookback       time.Duration
	Location       *time.Location
}

func (c Config) withDefaults() Config {
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = model.DefaultUpdateInterval
	}
	if c.RecentLimit <= 0 {
		c.RecentLimit = model.DefaultRecentLimit
	}
	if c.Window <= 0 {
		c.Window = model.DefaultAggregationWindow
	}
	if c.Bucket <= 0 {
		c.Bucket = model.DefaultBucketWidth
	}
	if c.Lookback <= 0 {
		c.Lookback = model.DefaultDeltaLookback
	}
	if c.Location == nil {
		c.Location = model.DefaultCivilZone
	}
	return c
}

// TickMsg triggers a periodic refresh.
type TickMsg time.Time

type dataLoadedMsg struct {
	records []model.ErrorRecord
	buckets []model.Bucket
	delta   aggregate.Delta
	at      time.Time
	err     error // first failure; the other fields still hold what loaded
}

type explainDoneMsg struct {
	id     int64
	result explain.Result
	err    error
}

// DashboardPage shows the error rate, the bucket chart and the newest errors.
type DashboardPage struct {
	dash dashboard.Dashboard
	cfg  Config
	keys KeyMap

	table   table.Model
	records []model.ErrorRecord
	buckets []model.Bucket
	delta   aggregate.Delta

	loaded     bool
	lastUpdate time.Time
	lastErr    error
	explaining int64 // id in flight, 0 = none
	status     string
}

// NewDashboardPage creates the main page polling dash.
func NewDashboardPage(dash dashboard.Dashboard, cfg Config) *DashboardPage {
	cfg = cfg.withDefaults()
	t := table.New(
		table.WithColumns(recordColumns(80)),
		table.WithFocused(true),
		table.WithHeight(cfg.RecentLimit),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorGray).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57"))
	t.SetStyles(styles)

	return &DashboardPage{
		dash:  dash,
		cfg:   cfg,
		keys:  DefaultKeyMap(),
		table: t,
		delta: aggregate.NewDelta(0, 0),
	}
}

func (p *DashboardPage) ID() string { return DashboardPageID }

func (p *DashboardPage) Init() tea.Cmd {
	if p.loaded {
		return nil
	}
	return tea.Batch(p.fetch(), p.tick())
}

func (p *DashboardPage) tick() tea.Cmd {
	return tea.Tick(p.cfg.UpdateInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// fetch loads everything the page shows in one command.
func (p *DashboardPage) fetch() tea.Cmd {
	dash, cfg := p.dash, p.cfg
	return func() tea.Msg {
		msg := dataLoadedMsg{at: time.Now()}
		keep := func(err error) {
			if err != nil && msg.err == nil {
				msg.err = err
			}
		}
		var err error
		msg.records, err = dash.Recent(cfg.RecentLimit)
		keep(err)
		msg.buckets, err = dash.Buckets(cfg.Window, cfg.Bucket)
		keep(err)
		msg.delta, err = dash.Delta(cfg.Lookback)
		keep(err)
		return msg
	}
}

func (p *DashboardPage) explain(id int64) tea.Cmd {
	dash := p.dash
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), explainTimeout)
		defer cancel()
		res, err := dash.Explain(ctx, id)
		return explainDoneMsg{id: id, result: res, err: err}
	}
}

func (p *DashboardPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case TickMsg:
		return tea.Batch(p.fetch(), p.tick()), nil

	case dataLoadedMsg:
		p.loaded = true
		p.lastErr = msg.err
		if msg.err == nil {
			p.lastUpdate = msg.at
		}
		if msg.records != nil {
			p.setRecords(msg.records)
		}
		if msg.buckets != nil {
			p.buckets = msg.buckets
		}
		if msg.err == nil || msg.delta.Kind != "" {
			p.delta = msg.delta
		}
		return nil, nil

	case explainDoneMsg:
		if msg.id != p.explaining {
			return nil, nil
		}
		p.explaining = 0
		switch {
		case errors.Is(msg.err, explain.ErrNotConfigured):
			p.status = "explanations are not configured on the server"
		case errors.Is(msg.err, explain.ErrRecordNotFound):
			p.status = fmt.Sprintf("record %d no longer exists", msg.id)
		case msg.err != nil:
			p.status = "explain failed: " + msg.err.Error()
		default:
			p.status = ""
			return nil, &PageNav{PageID: DetailPageID, Params: msg.result}
		}
		return nil, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, p.keys.Refresh):
			p.status = ""
			return p.fetch(), nil
		case key.Matches(msg, p.keys.Explain):
			rec, ok := p.selected()
			if !ok || p.explaining != 0 {
				return nil, nil
			}
			p.explaining = rec.ID
			p.status = fmt.Sprintf("explaining record %d...", rec.ID)
			return p.explain(rec.ID), nil
		}
		var cmd tea.Cmd
		p.table, cmd = p.table.Update(msg)
		return cmd, nil
	}
	return nil, nil
}

func (p *DashboardPage) setRecords(recs []model.ErrorRecord) {
	p.records = recs
	rows := make([]table.Row, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", r.ID),
			r.Timestamp.In(p.cfg.Location).Format("2006-01-02 15:04:05"),
			r.Level,
			fmt.Sprintf("%d", r.ResponseTime),
			firstLine(r.Message),
		})
	}
	p.table.SetRows(rows)
	if c := p.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		p.table.SetCursor(len(rows) - 1)
	}
}

func (p *DashboardPage) selected() (model.ErrorRecord, bool) {
	c := p.table.Cursor()
	if c < 0 || c >= len(p.records) {
		return model.ErrorRecord{}, false
	}
	return p.records[c], true
}

func recordColumns(width int) []table.Column {
	fixed := 6 + 19 + 16 + 8
	msgWidth := width - fixed - 10
	if msgWidth < 20 {
		msgWidth = 20
	}
	return []table.Column{
		{Title: "ID", Width: 6},
		{Title: "Time", Width: 19},
		{Title: "Level", Width: 16},
		{Title: "RT(ms)", Width: 8},
		{Title: "Message", Width: msgWidth},
	}
}

// firstLine returns the first line of a possibly multi-line message.
func firstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i] + " …"
	}
	return s
}

func (p *DashboardPage) View(width, height int) string {
	if width <= 0 {
		width = 100
	}
	if !p.loaded {
		return lipgloss.Place(width, max(height, 1), lipgloss.Center, lipgloss.Center,
			helpStyle.Italic(true).Render("Loading..."))
	}

	header := p.renderHeader(width)
	chart := p.renderChart(width - 2)

	p.table.SetColumns(recordColumns(width))
	p.table.SetWidth(width - 4)
	tableHeight := height - lipgloss.Height(header) - lipgloss.Height(chart) - 6
	if tableHeight < 3 {
		tableHeight = 3
	}
	p.table.SetHeight(tableHeight)
	tbl := sectionStyle.Width(width - 2).Render(p.table.View())

	footer := helpStyle.Render(helpLine(p.keys.Up, p.keys.Down, p.keys.Explain, p.keys.Refresh, p.keys.Quit))
	if p.status != "" {
		footer = chartTitleStyle.Render(p.status) + "\n" + footer
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, chart, tbl, footer)
}

func (p *DashboardPage) renderHeader(width int) string {
	title := chartTitleStyle.Render("errwatch")
	window := lookbackLabel(p.cfg.Lookback)
	count := fmt.Sprintf("%d errors in the last %s", p.delta.Current, window)
	delta := lipgloss.NewStyle().Foreground(deltaColor(p.delta.Diff)).
		Render(fmt.Sprintf("vs previous %s: %s", window, p.delta.String()))

	right := ""
	if !p.lastUpdate.IsZero() {
		right = helpStyle.Render("updated " + p.lastUpdate.In(p.cfg.Location).Format("15:04:05"))
	}
	line := strings.Join([]string{title, count, delta, right}, "  ")
	if p.lastErr != nil {
		line += "\n" + errorStyle.Render("refresh failed: "+p.lastErr.Error())
	}
	return lipgloss.NewStyle().Width(width).Render(line)
}

func lookbackLabel(d time.Duration) string {
	if d == time.Hour {
		return "hour"
	}
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}
