package probe

import "fmt"

func errUnexpectedFormat(source, got string) error {
	return fmt.Errorf("probe: unexpected output from %s: %q", source, got)
}
