//go:build windows

package busyport

import "testing"

func TestSplitCSVLineHandlesEmbeddedQuotes(t *testing.T) {
	line := `"127.0.0.1","8080","0.0.0.0","0","Listen","1234","svchost","C:\Program Files\App ""beta"" \app.exe"`
	fields := splitCSVLine(line)
	if len(fields) != 8 {
		t.Fatalf("got %d fields, want 8: %#v", len(fields), fields)
	}
	want := `C:\Program Files\App "beta" \app.exe`
	if fields[7] != want {
		t.Fatalf("fields[7] = %q, want %q", fields[7], want)
	}
}

func TestSplitCSVLineCommaInsideQuotes(t *testing.T) {
	line := `"a","b","c,d","e"`
	fields := splitCSVLine(line)
	if len(fields) != 4 {
		t.Fatalf("got %d fields, want 4: %#v", len(fields), fields)
	}
	if fields[2] != "c,d" {
		t.Fatalf("fields[2] = %q, want %q", fields[2], "c,d")
	}
}

func TestWindowsStateAliasIsCaseInsensitive(t *testing.T) {
	if windowsStateAlias("Listen") != StateListen {
		t.Fatalf("Listen should map to StateListen")
	}
	if windowsStateAlias("LISTEN") != StateListen {
		t.Fatalf("LISTEN should map to StateListen")
	}
	if windowsStateAlias("listen") != StateListen {
		t.Fatalf("listen should map to StateListen")
	}
}
