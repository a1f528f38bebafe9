//go:build darwin

package busyport

import "testing"

func TestParseNettopSingleConnection(t *testing.T) {
	lines := []string{
		"nginx.1234,,",
		"tcp4 *:8080<->,,Listen,",
	}
	entries := parseNettop(lines)
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

func TestParseNettopIPv6RebracketsAddress(t *testing.T) {
	lines := []string{
		"sshd.42,,",
		"tcp6 fe80::1.22<->fe80::2.51000,,Established,",
	}
	entries := parseNettop(lines)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1: %#v", len(entries), entries)
	}
	e := entries[0]
	if e.LocalEndpoint.Port != 22 || e.RemoteEndpoint.Port != 51000 {
		t.Fatalf("unexpected endpoints: %+v", e)
	}
	if e.LocalEndpoint.IP.String() != "fe80::1" {
		t.Fatalf("LocalEndpoint.IP = %v, want fe80::1", e.LocalEndpoint.IP)
	}
}
