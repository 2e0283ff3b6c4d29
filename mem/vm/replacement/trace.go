package replacement

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/sarchlab/vmsim/mem/vm"
)

// defaultTrace is the page access sequence of the bundled sample workload.
var defaultTrace = []vm.VPN{
	0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 6, 6, 0, 0, 4, 255, 4, 5,
	5, 0, 255, 1, 255, 1, 1, 1, 2, 3, 0, 255, 1, 254, 1, 1, 1, 2, 3, 0, 254, 1, 254, 1, 1, 1, 2,
	3, 0, 254, 1, 253, 1, 1, 1, 2, 3, 0, 253, 1, 253, 1, 1, 1, 2, 3, 0, 253, 1, 252, 1, 1, 1, 2,
	3, 0, 252, 1, 252, 1, 1, 1, 2, 3, 0, 252, 1, 251, 1, 1, 1, 2, 3, 0, 251, 1, 251, 1, 1, 1, 2,
	3, 0, 251, 1, 250, 1, 1, 1, 2, 3, 0, 250, 1, 250, 1, 1, 1, 2, 3, 0, 250, 1, 249, 1, 1, 1, 2,
	2, 2, 3, 250, 3, 3, 250, 4, 4, 3, 250, 3, 3, 251, 4, 4, 3, 251, 3, 3, 251, 4, 4, 3, 251, 3,
	3, 252, 4, 4, 3, 252, 3, 3, 252, 4, 4, 3, 252, 3, 3, 253, 4, 4, 3, 253, 3, 3, 253, 4, 4, 3,
	253, 3, 3, 254, 4, 4, 3, 254, 3, 3, 254, 4, 4, 3, 254, 3, 3, 255, 4, 4, 3, 255, 3, 3, 255,
	4, 4, 5, 255, 5, 6, 0, 6,
}

// DefaultTrace returns a copy of the trace of the bundled sample workload.
func DefaultTrace() []vm.VPN {
	trace := make([]vm.VPN, len(defaultTrace))
	copy(trace, defaultTrace)

	return trace
}

func isTraceSeparator(r rune) bool {
	return r == ',' || r == '{' || r == '}' || unicode.IsSpace(r)
}

// ReadTrace parses a page access trace. Page numbers are separated by commas
// or white space, and the whole list may be enclosed in braces.
func ReadTrace(r io.Reader) ([]vm.VPN, error) {
	var trace []vm.VPN

	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		for _, field := range strings.FieldsFunc(scanner.Text(), isTraceSeparator) {
			vpn, err := strconv.ParseUint(field, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("trace line %d: bad page number %q",
					lineNumber, field)
			}
			trace = append(trace, vm.VPN(vpn))
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return trace, nil
}

// WriteTrace formats a trace so that ReadTrace can parse it back.
func WriteTrace(w io.Writer, trace []vm.VPN) (int64, error) {
	var sb strings.Builder

	sb.WriteString("{")
	for i, vpn := range trace {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatUint(uint64(vpn), 10))
	}
	sb.WriteString("}\n")

	n, err := io.WriteString(w, sb.String())

	return int64(n), err
}
