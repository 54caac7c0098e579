package discover

import (
	"regexp"
	"strconv"
	"strings"

	"quotabar/internal/scanner"
)

// Candidate is an unverified hypothesis about where the language server
// listens and how to authenticate to it, derived from one process record.
// Absent ports are 0 and an absent token is "".
type Candidate struct {
	PID           int
	ExtensionPort int
	ConnectPort   int
	CSRFToken     string
}

// The exact flag names are an implementation detail of the host process and
// shift between its releases, so extraction matches any flag whose name
// contains "port" or a token-ish word rather than exact spellings.
var (
	portFlagRe  = regexp.MustCompile(`(?i)--?([a-z0-9_.-]*port[a-z0-9_.-]*)[=\s]+(\d{1,5})`)
	tokenFlagRe = regexp.MustCompile(`(?i)--?([a-z0-9_.-]*(?:token|secret|csrf)[a-z0-9_.-]*)[=\s]+(\S+)`)
)

// Extract derives a Candidate from a process record's command line. It is a
// pure function: no I/O, and missing fields are encoded as absent rather
// than treated as an error. The first match of each kind wins.
func Extract(rec scanner.ProcessRecord) Candidate {
	c := Candidate{PID: rec.PID}

	for _, m := range portFlagRe.FindAllStringSubmatch(rec.CommandLine, -1) {
		name := strings.ToLower(m[1])
		port, err := strconv.Atoi(m[2])
		if err != nil || port < 1 || port > 65535 {
			continue
		}
		if strings.Contains(name, "extension") {
			if c.ExtensionPort == 0 {
				c.ExtensionPort = port
			}
		} else if c.ConnectPort == 0 {
			c.ConnectPort = port
		}
	}

	if m := tokenFlagRe.FindStringSubmatch(rec.CommandLine); m != nil {
		c.CSRFToken = m[2]
	}

	return c
}

// Viable reports whether the candidate is worth probing at all. A candidate
// with neither a port nor a token gives the prober nothing to work with.
func (c Candidate) Viable() bool {
	return c.CSRFToken != "" || c.probePort() != 0
}

// probePort is the port to try first: the extracted connect port when
// present, otherwise the extension's front-door port.
func (c Candidate) probePort() int {
	if c.ConnectPort != 0 {
		return c.ConnectPort
	}
	return c.ExtensionPort
}

// completeness ranks candidates for probe order: both fields beat
// token-only, which beats port-only.
func (c Candidate) completeness() int {
	switch {
	case c.probePort() != 0 && c.CSRFToken != "":
		return 2
	case c.CSRFToken != "":
		return 1
	default:
		return 0
	}
}
