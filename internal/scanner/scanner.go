package scanner

import (
	"context"
	"fmt"
	"strings"
)

// ProcessRecord holds one process from a scan cycle: its PID and the full
// command line it was launched with. Records are ephemeral and discarded
// after each cycle.
type ProcessRecord struct {
	PID         int
	CommandLine string
}

// ProcessLister enumerates running processes on the host. The production
// implementation is selected once at startup via NewDefaultLister; tests
// substitute fakes.
type ProcessLister interface {
	List(ctx context.Context) ([]ProcessRecord, error)
}

// ScanError means the OS process-listing mechanism itself failed (tool
// missing, permission denied). "No matching process" is never a ScanError.
type ScanError struct {
	Tool string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("process scan via %s failed: %v", e.Tool, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// Match returns the records whose command line contains any of the given
// patterns, case-insensitively. Installation paths vary by platform and IDE
// packaging, so matching is by substring, not exact path. Multiple matches
// (parent and helper processes) are all returned; filtering happens
// downstream.
func Match(records []ProcessRecord, patterns []string) []ProcessRecord {
	var matched []ProcessRecord
	for _, rec := range records {
		cmdline := strings.ToLower(rec.CommandLine)
		for _, pat := range patterns {
			if pat == "" {
				continue
			}
			if strings.Contains(cmdline, strings.ToLower(pat)) {
				matched = append(matched, rec)
				break
			}
		}
	}
	return matched
}
