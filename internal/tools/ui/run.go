package ui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

type Action func(ctx context.Context) ([]string, error)

type actionMsg struct {
	details []string
	err     error
}

type model struct {
	ctx     context.Context
	title   string
	action  Action
	done    bool
	details []string
	err     error
}

func (m model) Init() tea.Cmd {
	return func() tea.Msg {
		ctx := m.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		details, err := m.action(ctx)
		return actionMsg{details: details, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case actionMsg:
		m.done = true
		m.details = msg.details
		m.err = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	if !m.done {
		fmt.Fprintf(&b, "%s\n  Running...\n", m.title)
		return b.String()
	}
	if m.err != nil {
		fmt.Fprintf(&b, "%s\n  FAILED: %v\n", m.title, m.err)
	} else {
		fmt.Fprintf(&b, "%s\n  OK\n", m.title)
	}
	for _, d := range m.details {
		fmt.Fprintf(&b, "  - %s\n", d)
	}
	return b.String()
}

// Run executes action behind a terminal status view and returns its result.
func Run(ctx context.Context, title string, action Action) ([]string, error) {
	final, err := tea.NewProgram(model{ctx: ctx, title: title, action: action}).Run()
	if err != nil {
		return nil, err
	}
	m := final.(model)
	if !m.done {
		return m.details, fmt.Errorf("%s: interrupted", title)
	}
	return m.details, m.err
}
