package scanner

import (
	"errors"
	"testing"
)

func TestParsePSOutput(t *testing.T) {
	out := `  412 /usr/lib/systemd/systemd --user
 8123 /opt/ide/bin/language_server --server_port=9997 --csrf_token=abc123
 8124 language_server_helper
garbage line without pid
`
	records := parsePSOutput(out)
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d: %v", len(records), records)
	}
	if records[0].PID != 412 {
		t.Errorf("expected PID 412, got %d", records[0].PID)
	}
	if records[1].PID != 8123 {
		t.Errorf("expected PID 8123, got %d", records[1].PID)
	}
	if records[1].CommandLine != "/opt/ide/bin/language_server --server_port=9997 --csrf_token=abc123" {
		t.Errorf("unexpected command line: %q", records[1].CommandLine)
	}
}

func TestParsePSOutput_Empty(t *testing.T) {
	if records := parsePSOutput(""); records != nil {
		t.Errorf("expected nil for empty output, got %v", records)
	}
	if records := parsePSOutput("\n\n"); records != nil {
		t.Errorf("expected nil for blank output, got %v", records)
	}
}

func TestParseWMICOutput(t *testing.T) {
	out := "Node,CommandLine,ProcessId\r\n" +
		"DESKTOP-1,C:\\ide\\language_server.exe --extension_port 42100 --csrf_token=tok,4812\r\n" +
		"DESKTOP-1,,912\r\n"
	records := parseWMICOutput(out)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d: %v", len(records), records)
	}
	if records[0].PID != 4812 {
		t.Errorf("expected PID 4812, got %d", records[0].PID)
	}
	if records[0].CommandLine != "C:\\ide\\language_server.exe --extension_port 42100 --csrf_token=tok" {
		t.Errorf("unexpected command line: %q", records[0].CommandLine)
	}
}

func TestParseWMICOutput_CommasInCommandLine(t *testing.T) {
	out := "Node,CommandLine,ProcessId\r\n" +
		"PC,server.exe --models=a,b,c --port=9000,777\r\n"
	records := parseWMICOutput(out)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].CommandLine != "server.exe --models=a,b,c --port=9000" {
		t.Errorf("commas inside the command line must be preserved, got %q", records[0].CommandLine)
	}
	if records[0].PID != 777 {
		t.Errorf("expected PID 777, got %d", records[0].PID)
	}
}

func TestMatch_CaseInsensitiveSubstring(t *testing.T) {
	records := []ProcessRecord{
		{PID: 1, CommandLine: "/opt/ide/bin/Language_Server --port=1"},
		{PID: 2, CommandLine: "/usr/bin/vim"},
		{PID: 3, CommandLine: "node helper --spawned-by language_server"},
	}
	matched := Match(records, []string{"language_server"})
	if len(matched) != 2 {
		t.Fatalf("expected 2 matches, got %d: %v", len(matched), matched)
	}
	if matched[0].PID != 1 || matched[1].PID != 3 {
		t.Errorf("unexpected match PIDs: %d, %d", matched[0].PID, matched[1].PID)
	}
}

func TestMatch_NoPatterns(t *testing.T) {
	records := []ProcessRecord{{PID: 1, CommandLine: "anything"}}
	if matched := Match(records, nil); matched != nil {
		t.Errorf("expected no matches without patterns, got %v", matched)
	}
	if matched := Match(records, []string{""}); matched != nil {
		t.Errorf("empty pattern must not match everything, got %v", matched)
	}
}

func TestScanError_Unwrap(t *testing.T) {
	inner := errors.New("exec: \"ps\": executable file not found in $PATH")
	err := &ScanError{Tool: "ps", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("ScanError should unwrap to its cause")
	}
	var scanErr *ScanError
	if !errors.As(error(err), &scanErr) {
		t.Error("errors.As should recover *ScanError")
	}
}
