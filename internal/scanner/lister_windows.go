//go:build windows

package scanner

import (
	"context"
	"os/exec"
)

// wmicLister lists processes via wmic CSV output. tasklist omits command
// lines, so wmic is the one stock tool that exposes them.
type wmicLister struct{}

// NewDefaultLister returns the production ProcessLister for this platform.
func NewDefaultLister() ProcessLister {
	return &wmicLister{}
}

func (l *wmicLister) List(ctx context.Context) ([]ProcessRecord, error) {
	out, err := exec.CommandContext(ctx, "wmic", "process", "get", "CommandLine,ProcessId", "/FORMAT:CSV").Output()
	if err != nil {
		return nil, &ScanError{Tool: "wmic", Err: err}
	}
	return parseWMICOutput(string(out)), nil
}
