// Package replacement provides the page replacement policies that decide
// which frame an MMU takes when every frame is in use.
package replacement

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sarchlab/vmsim/mem/vm"
)

// ErrUnknownPolicy means that a policy name does not name any policy.
var ErrUnknownPolicy = errors.New("unknown page replacement algorithm")

// Kind names a page replacement policy.
type Kind int

// The supported policies.
const (
	FIFO Kind = iota
	SecondChance
	Optimal
)

var kindNames = map[Kind]string{
	FIFO:         "fifo",
	SecondChance: "second-chance",
	Optimal:      "optimal",
}

// Kinds lists every policy in a stable order.
func Kinds() []Kind {
	return []Kind{FIFO, SecondChance, Optimal}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("Kind(%d)", int(k))
}

// Description returns a one-line human readable description of the policy.
func (k Kind) Description() string {
	switch k {
	case FIFO:
		return "First-in, first-out page replacement algorithm."
	case SecondChance:
		return "Second-chance page replacement algorithm."
	case Optimal:
		return "Optimal page replacement algorithm."
	default:
		return k.String()
	}
}

// ParseKind converts a policy name into a Kind. The names "clock" and
// "optimal-page-replacement" are accepted as aliases.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fifo":
		return FIFO, nil
	case "second-chance", "clock":
		return SecondChance, nil
	case "optimal", "optimal-page-replacement":
		return Optimal, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
}

// New creates a policy of the given kind. The trace is only used by the
// optimal policy. A nil trace selects DefaultTrace.
func New(kind Kind, trace []vm.VPN) (vm.VictimFinder, error) {
	switch kind {
	case FIFO:
		return NewFIFOVictimFinder(), nil
	case SecondChance:
		return NewClockVictimFinder(), nil
	case Optimal:
		if trace == nil {
			trace = DefaultTrace()
		}
		return NewOptimalVictimFinder(trace), nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownPolicy, kind)
}
