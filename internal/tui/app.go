package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// Page represents a top-level screen in the TUI.
type Page interface {
	ID() string
	Init() tea.Cmd
	Update(msg tea.Msg) (tea.Cmd, *PageNav)
	View(width, height int) string
}

// PageNav is returned from Update to request a page switch.
type PageNav struct {
	PageID string
	Params interface{}
}

// paramReceiver is implemented by pages that accept PageNav.Params on entry.
type paramReceiver interface {
	SetParams(params interface{})
}

// App is the top-level Bubble Tea model that routes between pages.
// Input goes to the active page only; every other message (ticks, fetch
// results, resizes) is delivered to all pages so background polling keeps
// running while another page is shown.
type App struct {
	pages      map[string]Page
	order      []string
	activePage string
	keys       KeyMap
	width      int
	height     int
}

// NewApp creates a new App with the given pages. The first page is the default.
func NewApp(pages ...Page) *App {
	a := &App{
		pages: make(map[string]Page, len(pages)),
		keys:  DefaultKeyMap(),
	}
	for i, p := range pages {
		a.pages[p.ID()] = p
		a.order = append(a.order, p.ID())
		if i == 0 {
			a.activePage = p.ID()
		}
	}
	return a
}

// ActivePage returns the id of the page currently shown.
func (a *App) ActivePage() string { return a.activePage }

func (a *App) Init() tea.Cmd {
	if p, ok := a.pages[a.activePage]; ok {
		return p.Init()
	}
	return nil
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, a.keys.ForceQuit) {
			return a, tea.Quit
		}
		if key.Matches(msg, a.keys.Quit) && len(a.order) > 0 && a.activePage == a.order[0] {
			return a, tea.Quit
		}
		return a, a.route(a.activePage, msg)
	case tea.MouseMsg:
		return a, a.route(a.activePage, msg)
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
	}

	cmds := make([]tea.Cmd, 0, len(a.order))
	for _, id := range a.order {
		cmds = append(cmds, a.route(id, msg))
	}
	return a, tea.Batch(cmds...)
}

func (a *App) route(id string, msg tea.Msg) tea.Cmd {
	p, ok := a.pages[id]
	if !ok {
		return nil
	}
	cmd, nav := p.Update(msg)
	if nav == nil {
		return cmd
	}
	target, exists := a.pages[nav.PageID]
	if !exists {
		return cmd
	}
	if r, ok := target.(paramReceiver); ok {
		r.SetParams(nav.Params)
	}
	a.activePage = nav.PageID
	return tea.Batch(cmd, target.Init())
}

func (a *App) View() string {
	if p, ok := a.pages[a.activePage]; ok {
		return p.View(a.width, a.height)
	}
	return "No active page"
}
