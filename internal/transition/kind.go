package transition

import (
	"fmt"
	"strings"
)

// Kind names a blend program.
type Kind string

const (
	Fade         Kind = "fade"
	Displacement Kind = "displacement"
	Noise        Kind = "noise"
)

// Sequence is the fixed order slideshows cycle through.
var Sequence = []Kind{Fade, Displacement, Noise}

func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case Fade, "":
		return Fade, nil
	case Displacement, "push":
		return Displacement, nil
	case Noise, "dissolve", "noise-dissolve":
		return Noise, nil
	}
	return "", fmt.Errorf("unknown transition %q", s)
}

// Cycle returns the kind used after n index changes.
func Cycle(n int) Kind {
	if n < 0 {
		n = -n
	}
	return Sequence[n%len(Sequence)]
}

func (k Kind) Next() Kind {
	for i, s := range Sequence {
		if s == k {
			return Sequence[(i+1)%len(Sequence)]
		}
	}
	return Sequence[0]
}
