//go:build windows

package busyport

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/devtoolkit/portguard/internal/executor"
)

// busyPortsForPlatform runs one PowerShell invocation pairing
// Get-NetTCPConnection against Get-WmiObject Win32_Process, CSV-serialized
//.
func busyPortsForPlatform(ctx context.Context, port int) ([]BusyPort, error) {
	filter := ""
	if port != 0 {
		filter = fmt.Sprintf(" -LocalPort %d", port)
	}

	script := fmt.Sprintf(`
$conns = Get-NetTCPConnection%s -ErrorAction SilentlyContinue
$procs = Get-WmiObject Win32_Process | Group-Object -Property ProcessId -AsHashTable -AsString
$rows = foreach ($c in $conns) {
  $p = $procs[[string]$c.OwningProcess]
  $name = ""
  $cmd = ""
  if ($p) { $name = $p[0].Name; $cmd = $p[0].CommandLine }
  [PSCustomObject]@{
    LocalAddress = $c.LocalAddress
    LocalPort = $c.LocalPort
    RemoteAddress = $c.RemoteAddress
    RemotePort = $c.RemotePort
    State = $c.State
    OwningProcess = $c.OwningProcess
    Name = $name
    CommandLine = $cmd
  }
}
$rows | ConvertTo-Csv -NoTypeInformation
`, filter)

	res, err := executor.Run(ctx, "powershell.exe", []string{"-NoProfile", "-NonInteractive", "-Command", script}, "")
	if err != nil {
		return nil, err
	}

	return parsePowerShellCSV(res.Stdout), nil
}

// parsePowerShellCSV parses ConvertTo-Csv output, handling embedded double
// quotes (doubled per CSV convention) by splitting on commas only when the
// running quote count so far is even.
func parsePowerShellCSV(lines []string) []BusyPort {
	var out []BusyPort
	header := true
	for _, line := range lines {
		if line == "" {
			continue
		}
		if header {
			header = false
			continue // skip the `#TYPE ...` / column header lines
		}
		if strings.HasPrefix(line, "#TYPE") {
			continue
		}

		fields := splitCSVLine(line)
		if len(fields) < 8 {
			continue
		}

		localPort, _ := strconv.Atoi(fields[1])
		remotePort, _ := strconv.Atoi(fields[3])
		pid, _ := strconv.ParseUint(fields[5], 10, 64)

		out = append(out, BusyPort{
			PID:            pid,
			LocalEndpoint:  Endpoint{IP: parseEndpoint(fields[0]+":0", strings.Contains(fields[0], ":")).IP, Port: localPort},
			RemoteEndpoint: Endpoint{IP: parseEndpoint(fields[2]+":0", strings.Contains(fields[2], ":")).IP, Port: remotePort},
			State:          windowsStateAlias(fields[4]),
			ShortCommand:   fields[6],
			CommandLine:    fields[7],
		})
	}
	return out
}

// splitCSVLine splits a single CSV record into fields, unescaping doubled
// quotes and treating commas inside an odd-quote-count run as literal.
func splitCSVLine(line string) []string {
	var fields []string
	var cur strings.Builder
	quoted := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			if quoted && i+1 < len(line) && line[i+1] == '"' {
				cur.WriteByte('"')
				i++
				continue
			}
			quoted = !quoted
		case c == ',' && !quoted:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	fields = append(fields, cur.String())
	return fields
}

// windowsStateAlias maps Get-NetTCPConnection's state strings onto the
// normalized set. These lookups are case-insensitive.
func windowsStateAlias(s string) TCPState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "listen":
		return StateListen
	case "synsent":
		return StateSynSent
	case "synreceived":
		return StateSynReceived
	case "established":
		return StateEstablished
	case "finwait1":
		return StateFinWait1
	case "finwait2":
		return StateFinWait2
	case "closewait":
		return StateCloseWait
	case "closing":
		return StateClosing
	case "lastack":
		return StateLastAck
	case "timewait":
		return StateTimeWait
	case "deletetcb":
		return StateDeleteTCB
	case "bound":
		return StateBound
	case "closed":
		return StateClosed
	default:
		return StateUnknown
	}
}
