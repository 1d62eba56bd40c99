// Package tui provides an interactive run-history browser, shown when
// pipecraft is launched without a command.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/kanataki-zwei/pipecraft/internal/store"
)

// Model is the bubbletea model for the run-history view.
type Model struct {
	store *store.Store
	table table.Model
	err   error
}

type refreshMsg struct {
	rows []table.Row
	err  error
}

// InitialModel builds the history view over the metadata store.
func InitialModel(st *store.Store) Model {
	columns := []table.Column{
		{Title: "Run", Width: 6},
		{Title: "Sync", Width: 20},
		{Title: "Status", Width: 9},
		{Title: "Started", Width: 19},
		{Title: "Duration", Width: 10},
		{Title: "Rows", Width: 9},
		{Title: "Error", Width: 32},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	return Model{store: st, table: t}
}

// Init loads the first page of history.
func (m Model) Init() tea.Cmd {
	return m.refreshCmd()
}

func (m Model) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		runs, err := m.store.ListRuns(0, 100)
		if err != nil {
			return refreshMsg{err: err}
		}

		syncNames := make(map[int64]string)
		if syncs, err := m.store.ListSyncs(); err == nil {
			for _, sy := range syncs {
				syncNames[sy.ID] = sy.Name
			}
		}

		rows := make([]table.Row, 0, len(runs))
		for _, r := range runs {
			rows = append(rows, table.Row{
				fmt.Sprintf("%d", r.ID),
				syncNames[r.SyncID],
				renderStatus(r.Status),
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				renderDuration(r),
				renderRowCount(r),
				r.ErrorMessage,
			})
		}
		return refreshMsg{rows: rows}
	}
}

func renderStatus(s store.RunStatus) string {
	switch s {
	case store.RunSuccess:
		return styleSuccess.Render(string(s))
	case store.RunFailed:
		return styleFailed.Render(string(s))
	case store.RunRunning:
		return styleRunning.Render(string(s))
	default:
		return string(s)
	}
}

func renderDuration(r *store.Run) string {
	if r.EndedAt == nil {
		return "-"
	}
	return r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
}

func renderRowCount(r *store.Run) string {
	if r.RowCount == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *r.RowCount)
}

// Update handles key presses and refresh results.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.refreshCmd()
		}
	case refreshMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.table.SetRows(msg.rows)
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the history table.
func (m Model) View() string {
	s := styleTitle.Render("pipecraft run history") + "\n"
	if m.err != nil {
		s += styleFailed.Render(fmt.Sprintf("error: %v", m.err)) + "\n"
	}
	s += styleTable.Render(m.table.View()) + "\n"
	s += styleHelp.Render("r refresh • q quit")
	return s
}

// Start runs the TUI until the user quits.
func Start(st *store.Store) error {
	p := tea.NewProgram(InitialModel(st))
	_, err := p.Run()
	return err
}
