package module

import (
	"errors"
	"fmt"
	"strings"
)

// RunType selects which algorithmic assumptions the upstream stages used.
type RunType string

const (
	Constrained   RunType = "constrained"
	Unconstrained RunType = "unconstrained"
)

// ErrUnknownRunType is returned for anything other than constrained or unconstrained.
var ErrUnknownRunType = errors.New("unknown run type")

func (r RunType) String() string {
	return string(r)
}

// ParseRunType validates a run type string.
func ParseRunType(raw string) (RunType, error) {
	switch rt := RunType(strings.ToLower(strings.TrimSpace(raw))); rt {
	case Constrained, Unconstrained:
		return rt, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRunType, raw)
	}
}
