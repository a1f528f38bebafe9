//go:build linux

package busyport

import "testing"

func TestParseLsofFieldsSingleListener(t *testing.T) {
	fields := []string{
		"p1234",
		"cnginx",
		"f6",
		"PTCP",
		"n*:8080",
		"TST=LISTEN",
	}
	entries := parseLsofFields(fields)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1: %#v", len(entries), entries)
	}
	e := entries[0]
	if e.PID != 1234 || e.ShortCommand != "nginx" {
		t.Fatalf("unexpected process info: %+v", e)
	}
	if e.State != StateListen {
		t.Fatalf("State = %v, want Listen", e.State)
	}
	if e.LocalEndpoint.Port != 8080 {
		t.Fatalf("LocalEndpoint.Port = %d, want 8080", e.LocalEndpoint.Port)
	}
}

func TestParseLsofFieldsMultipleConnectionsSameProcess(t *testing.T) {
	fields := []string{
		"p1",
		"csshd",
		"f3",
		"PTCP",
		"n127.0.0.1:22->127.0.0.1:51000",
		"TST=ESTABLISHED",
		"f4",
		"PTCP",
		"n*:22",
		"TST=LISTEN",
	}
	entries := parseLsofFields(fields)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2: %#v", len(entries), entries)
	}
	if entries[0].State != StateEstablished || entries[1].State != StateListen {
		t.Fatalf("unexpected states: %+v", entries)
	}
	if entries[0].RemoteEndpoint.Port != 51000 {
		t.Fatalf("RemoteEndpoint.Port = %d, want 51000", entries[0].RemoteEndpoint.Port)
	}
}

func TestLsofStateAliasUnknownIsPreserved(t *testing.T) {
	if lsofStateAlias("SOMETHING_NEW") != StateUnknown {
		t.Fatalf("unrecognized state should map to StateUnknown")
	}
}
