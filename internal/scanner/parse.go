package scanner

import (
	"strconv"
	"strings"
)

// parsePSOutput parses `ps -axww -o pid=,command=` output: one process per
// line, PID right-aligned in the first column, command line in the rest.
func parsePSOutput(out string) []ProcessRecord {
	var records []ProcessRecord
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			continue
		}
		pid, err := strconv.Atoi(line[:sp])
		if err != nil || pid <= 0 {
			continue
		}
		cmdline := strings.TrimSpace(line[sp+1:])
		if cmdline == "" {
			continue
		}
		records = append(records, ProcessRecord{PID: pid, CommandLine: cmdline})
	}
	return records
}

// parseWMICOutput parses `wmic process get CommandLine,ProcessId /FORMAT:CSV`
// output. Rows are Node,CommandLine,ProcessId; wmic does not quote fields, so
// commas inside the command line spill into extra columns and are rejoined.
func parseWMICOutput(out string) []ProcessRecord {
	var records []ProcessRecord
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(strings.TrimSpace(line), "\r")
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 3 {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1]))
		if err != nil || pid <= 0 {
			continue // header or malformed row
		}
		cmdline := strings.TrimSpace(strings.Join(parts[1:len(parts)-1], ","))
		if cmdline == "" {
			continue
		}
		records = append(records, ProcessRecord{PID: pid, CommandLine: cmdline})
	}
	return records
}
