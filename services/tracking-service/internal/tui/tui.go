// Package tui is a live terminal dashboard over the tracker.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/store"
)

const actionTimeout = 30 * time.Second

// ── Styles ────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	connectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)
)

// Tracker is what the dashboard reads and drives
type Tracker interface {
	Session() domain.WalletSession
	Shipments() []domain.Shipment
	Connect(ctx context.Context) (domain.WalletSession, error)
	Disconnect(ctx context.Context) domain.WalletSession
	Refresh(ctx context.Context) ([]domain.Shipment, error)
	SubscribeSession(fn func(domain.WalletSession)) func()
	SubscribeShipments(fn func(store.Change)) func()
}

// ── Messages ────────────

type sessionMsg domain.WalletSession

type shipmentsMsg []domain.Shipment

type errMsg struct{ err error }

// ── Model ────────────

// Model is the root Bubble Tea model of the dashboard
type Model struct {
	tracker   Tracker
	session   domain.WalletSession
	shipments []domain.Shipment
	stats     domain.DashboardStats
	table     table.Model
	lastErr   error
	width     int
	height    int
}

// New seeds the model from the tracker's current snapshots
func New(tracker Tracker) Model {
	columns := []table.Column{
		{Title: "Shipment", Width: 14},
		{Title: "RFID", Width: 10},
		{Title: "Status", Width: 12},
		{Title: "Position", Width: 20},
		{Title: "Last update", Width: 18},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("62"))
	t.SetStyles(styles)

	m := Model{tracker: tracker, table: t}
	if tracker != nil {
		m.session = tracker.Session()
		m.setShipments(tracker.Shipments())
	}
	return m
}

func (m *Model) setShipments(list []domain.Shipment) {
	m.shipments = list
	m.stats = domain.ComputeStats(list)
	rows := make([]table.Row, 0, len(list))
	for _, s := range list {
		rows = append(rows, table.Row{
			s.ID,
			s.RFIDTag,
			s.Status.Label(),
			formatPosition(s),
			humanize.Time(s.LastUpdate),
		})
	}
	m.table.SetRows(rows)
}

func formatPosition(s domain.Shipment) string {
	if s.Location == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f, %.4f", s.Location.Lat, s.Location.Lng)
}

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.action(func(ctx context.Context) error {
				_, err := m.tracker.Refresh(ctx)
				return err
			})
		case "c":
			return m, m.action(func(ctx context.Context) error {
				_, err := m.tracker.Connect(ctx)
				return err
			})
		case "d":
			return m, m.action(func(ctx context.Context) error {
				m.tracker.Disconnect(ctx)
				return nil
			})
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// title, session, stats, detail, status bar and table borders
		if h := m.height - 8; h > 3 {
			m.table.SetHeight(h)
		}
		return m, nil

	case sessionMsg:
		m.session = domain.WalletSession(msg)
		m.lastErr = m.session.LastError
		return m, nil

	case shipmentsMsg:
		m.setShipments(msg)
		return m, nil

	case errMsg:
		m.lastErr = msg.err
		return m, nil
	}
	return m, nil
}

// action runs fn off the UI loop and reports a failure as errMsg
func (m Model) action(fn func(ctx context.Context) error) tea.Cmd {
	if m.tracker == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			return errMsg{err: err}
		}
		return nil
	}
}

func (m Model) View() string {
	width := m.width
	if width == 0 {
		width = 80
	}

	title := titleStyle.Width(width).Render("  shipment tracker")

	var sb strings.Builder
	sb.WriteString(labelStyle.Render("  Wallet  ") + m.renderSession() + "\n")
	sb.WriteString(labelStyle.Render("  Totals  ") + fmt.Sprintf(
		"%d shipments  %d in transit  %d delivered  %d alerts  %.0f%% delivered",
		m.stats.Total, m.stats.InTransit, m.stats.Delivered, m.stats.Alerts, m.stats.DeliveryRate*100,
	) + "\n")

	body := m.table.View()
	if len(m.shipments) == 0 {
		body = dimStyle.Render("  (no shipments)")
	}

	detail := m.renderSelected()
	if m.lastErr != nil {
		detail = errorStyle.Render("  " + m.lastErr.Error())
	}

	hint := "  ↑/↓ select  r refresh  c connect  d disconnect  q quit"
	statusBar := statusBarStyle.Width(width).Render(hint)

	return lipgloss.JoinVertical(lipgloss.Left, title, sb.String(), body, detail, statusBar)
}

func (m Model) renderSession() string {
	s := m.session
	switch s.State {
	case domain.StateConnected:
		return connectedStyle.Render("connected") + "  " + domain.FormatAddress(s.Account) +
			dimStyle.Render(fmt.Sprintf("  chain %d", s.ChainID))
	case domain.StateConnecting:
		return pendingStyle.Render("connecting…")
	case domain.StateError:
		msg := "error"
		if s.LastError != nil {
			msg += ": " + s.LastError.Error()
		}
		return errorStyle.Render(msg)
	default:
		return dimStyle.Render("disconnected")
	}
}

func (m Model) renderSelected() string {
	row := m.table.SelectedRow()
	if row == nil {
		return ""
	}
	for _, s := range m.shipments {
		if s.ID != row[0] {
			continue
		}
		if n := len(s.Timeline); n > 0 {
			last := s.Timeline[n-1]
			return dimStyle.Render(fmt.Sprintf("  %s: %s %s", s.ID, last.Status.Label(), last.Details))
		}
		return dimStyle.Render("  " + s.ID + ": no history yet")
	}
	return ""
}

// Run shows the dashboard until the user quits or ctx is done. Tracker
// changes are forwarded into the program as they happen.
func Run(ctx context.Context, tracker Tracker, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(New(tracker), opts...)

	unsubSession := tracker.SubscribeSession(func(s domain.WalletSession) {
		p.Send(sessionMsg(s))
	})
	defer unsubSession()
	unsubShipments := tracker.SubscribeShipments(func(c store.Change) {
		p.Send(shipmentsMsg(c.Shipments))
	})
	defer unsubShipments()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
