// Package tui is the live terminal board: four columns (pending, processing,
// complete, bots) refreshed on a timer, with single-key commands.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"orderbot/internal/dispatch"
)

// Controller is the scheduler surface the board drives.
type Controller interface {
	SubmitOrder(class dispatch.Class) (int, error)
	AddWorker() int
	RemoveWorker() (int, error)
	Snapshot() dispatch.Snapshot
}

type keyMap struct {
	Normal key.Binding
	VIP    key.Binding
	Add    key.Binding
	Remove key.Binding
	Help   key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Normal, k.VIP, k.Add, k.Remove, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Normal, k.VIP}, {k.Add, k.Remove}, {k.Help, k.Quit}}
}

func newKeyMap() keyMap {
	return keyMap{
		Normal: key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "normal order")),
		VIP:    key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "vip order")),
		Add:    key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "add bot")),
		Remove: key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "remove bot")),
		Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	columnStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
	headStyle    = lipgloss.NewStyle().Bold(true)
	vipStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	busyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
)

type refreshMsg time.Time

// Model is the bubbletea model for the board.
type Model struct {
	ctl     Controller
	refresh time.Duration

	snap   dispatch.Snapshot
	keys   keyMap
	help   help.Model
	status string
	isErr  bool

	width  int
	height int
}

func New(ctl Controller, refresh time.Duration) *Model {
	if refresh <= 0 {
		refresh = 250 * time.Millisecond
	}
	m := &Model{ctl: ctl, refresh: refresh, keys: newKeyMap(), help: help.New()}
	m.sync()
	return m
}

// sync pulls a fresh snapshot. Removing a bot from an empty pool is disabled
// and drops out of the help line.
func (m *Model) sync() {
	m.snap = m.ctl.Snapshot()
	m.keys.Remove.SetEnabled(len(m.snap.Workers) > 0)
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m *Model) Init() tea.Cmd { return m.tick() }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
	case refreshMsg:
		m.sync()
		return m, m.tick()
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.Normal):
			m.submit(dispatch.ClassNormal)
		case key.Matches(msg, m.keys.VIP):
			m.submit(dispatch.ClassVIP)
		case key.Matches(msg, m.keys.Add):
			m.setStatus(fmt.Sprintf("added bot #%d", m.ctl.AddWorker()), nil)
		case key.Matches(msg, m.keys.Remove):
			id, err := m.ctl.RemoveWorker()
			m.setStatus(fmt.Sprintf("removed bot #%d", id), err)
		default:
			return m, nil
		}
		m.sync()
	}
	return m, nil
}

func (m *Model) submit(class dispatch.Class) {
	id, err := m.ctl.SubmitOrder(class)
	m.setStatus(fmt.Sprintf("%s order #%d queued", class, id), err)
}

func (m *Model) setStatus(ok string, err error) {
	if err != nil {
		m.status, m.isErr = err.Error(), true
		return
	}
	m.status, m.isErr = ok, false
}

func orderLine(o dispatch.Order, withWorker bool) string {
	label := fmt.Sprintf("#%-4d %s", o.ID, o.Class)
	if o.Class == dispatch.ClassVIP {
		label = vipStyle.Render(label)
	}
	if withWorker {
		label += mutedStyle.Render(fmt.Sprintf(" bot #%d", o.WorkerID))
	}
	if o.Attempts > 1 {
		label += mutedStyle.Render(fmt.Sprintf(" (try %d)", o.Attempts))
	}
	return label
}

// column renders at most rows lines, keeping the tail when tail is set.
func column(title string, lines []string, rows, width int, tail bool) string {
	head := headStyle.Render(fmt.Sprintf("%s (%d)", title, len(lines)))
	if len(lines) > rows {
		if tail {
			lines = append([]string{mutedStyle.Render("…")}, lines[len(lines)-rows+1:]...)
		} else {
			lines = append(lines[:rows-1:rows-1], mutedStyle.Render(fmt.Sprintf("+%d more", len(lines)-rows+1)))
		}
	}
	if len(lines) == 0 {
		lines = []string{mutedStyle.Render("-")}
	}
	return columnStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, append([]string{head}, lines...)...))
}

func (m *Model) View() string {
	s := m.snap
	colWidth := 24
	if m.width > 0 {
		colWidth = max(18, m.width/4-4)
	}
	rows := 15
	if m.height > 0 {
		rows = max(3, m.height-10)
	}

	pending := make([]string, 0, len(s.Pending))
	for _, o := range s.Pending {
		pending = append(pending, orderLine(o, false))
	}
	processing := make([]string, 0, len(s.Processing))
	for _, o := range s.Processing {
		line := orderLine(o, true)
		if left := s.ProcessingTime - s.Now.Sub(o.StartedAt); left > 0 {
			line += mutedStyle.Render(fmt.Sprintf(" %ds", int(left.Round(time.Second)/time.Second)))
		}
		processing = append(processing, line)
	}
	complete := make([]string, 0, len(s.Complete))
	for _, o := range s.Complete {
		complete = append(complete, orderLine(o, false))
	}
	bots := make([]string, 0, len(s.Workers))
	for _, w := range s.Workers {
		if w.Status == dispatch.WorkerBusy {
			bots = append(bots, busyStyle.Render(fmt.Sprintf("#%-3d BUSY → #%d", w.ID, w.OrderID)))
		} else {
			bots = append(bots, idleStyle.Render(fmt.Sprintf("#%-3d IDLE", w.ID)))
		}
	}

	board := lipgloss.JoinHorizontal(lipgloss.Top,
		column("PENDING", pending, rows, colWidth, false),
		column("PROCESSING", processing, rows, colWidth, false),
		column("COMPLETE", complete, rows, colWidth, true),
		column("BOTS", bots, rows, colWidth, false),
	)

	title := titleStyle.Render("🍔 Order Dispatch") + mutedStyle.Render(fmt.Sprintf("  processing %s · dispatched %d · requeued %d", s.ProcessingTime, s.Stats.Dispatched, s.Stats.Requeued))
	status := ""
	if m.status != "" {
		if m.isErr {
			status = errorStyle.Render("✗ " + m.status)
		} else {
			status = successStyle.Render("✓ " + m.status)
		}
	}
	return strings.Join([]string{title, board, status, m.help.View(m.keys)}, "\n")
}

// Run shows the board until the user quits or ctx is cancelled.
func Run(ctx context.Context, ctl Controller, refresh time.Duration) error {
	p := tea.NewProgram(New(ctl, refresh), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
