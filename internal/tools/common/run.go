package common

import (
	"context"
	"time"

	"github.com/ayolclub/travel-auth/internal/observability"
	"github.com/ayolclub/travel-auth/internal/tools/ui"
)

// Step describes one tool command invocation.
type Step struct {
	Tool    string
	Command string
	CI      bool
	Timeout time.Duration
}

func (s Step) Title() string { return s.Tool + " " + s.Command }

// Run executes fn headless in CI mode, otherwise behind the terminal UI.
// CI mode prints the JSON result itself.
func (s Step) Run(fn ui.Action) ([]string, error) {
	var (
		details []string
		err     error
	)
	if s.CI {
		timeout := s.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		details, err = fn(ctx)
		cancel()
		PrintCIResult(err == nil, s.Title(), details, err)
	} else {
		details, err = ui.Run(s.Title(), fn)
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	observability.RecordToolCommandRun(context.Background(), s.Tool, s.Command, status)
	return details, err
}
