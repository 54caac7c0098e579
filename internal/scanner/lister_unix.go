//go:build !windows

package scanner

import (
	"context"
	"os/exec"
)

// psLister lists processes via the standard ps utility. Works on both Linux
// and macOS; -ww prevents command-line truncation.
type psLister struct{}

// NewDefaultLister returns the production ProcessLister for this platform.
func NewDefaultLister() ProcessLister {
	return &psLister{}
}

func (l *psLister) List(ctx context.Context) ([]ProcessRecord, error) {
	out, err := exec.CommandContext(ctx, "ps", "-axww", "-o", "pid=,command=").Output()
	if err != nil {
		return nil, &ScanError{Tool: "ps", Err: err}
	}
	return parsePSOutput(string(out)), nil
}
