// Package ui renders a single long-running tool action in the terminal.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Action runs the tool step and returns human readable detail lines.
type Action func(context.Context) ([]string, error)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	okStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	detailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).PaddingLeft(2)

	spinnerFrames = []string{"|", "/", "-", "\\"}
)

const actionTimeout = 2 * time.Minute

type doneMsg struct {
	details []string
	err     error
}

type tickMsg time.Time

type model struct {
	title   string
	action  Action
	started time.Time
	elapsed time.Duration
	frame   int
	done    bool
	details []string
	err     error
}

func tick() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd {
	run := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		details, err := m.action(ctx)
		return doneMsg{details: details, err: err}
	}
	return tea.Batch(run, tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.err = context.Canceled
			m.done = true
			return m, tea.Quit
		}
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.frame++
		m.elapsed = time.Since(m.started)
		return m, tick()
	case doneMsg:
		m.details = msg.details
		m.err = msg.err
		m.done = true
		m.elapsed = time.Since(m.started)
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	if !m.done {
		frame := spinnerFrames[m.frame%len(spinnerFrames)]
		return fmt.Sprintf("%s\n\n%s running (%s)\n", titleStyle.Render(m.title), frame, m.elapsed.Round(time.Second))
	}
	return render(m.title, m.details, m.err, m.elapsed)
}

func render(title string, details []string, err error, elapsed time.Duration) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	if err != nil {
		fmt.Fprintf(&b, "%s %v\n", failStyle.Render("FAILED"), err)
	} else {
		fmt.Fprintf(&b, "%s in %s\n", okStyle.Render("OK"), elapsed.Round(time.Millisecond))
	}
	for _, d := range details {
		b.WriteString(detailStyle.Render("- "+d))
		b.WriteString("\n")
	}
	return b.String()
}

// Run shows a spinner until action returns, then prints its outcome.
func Run(title string, action Action) ([]string, error) {
	m := model{title: title, action: action, started: time.Now()}
	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return nil, err
	}
	res := final.(model)
	return res.details, res.err
}
