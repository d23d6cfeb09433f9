package mount

import "fmt"

// Outcome classifies how a read ended. The public helpers collapse it to a
// string or nothing; the outcome itself is kept for logging.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeTimeout
	OutcomeTransport
	OutcomeMalformed
	OutcomeNotConnected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeTransport:
		return "transport-error"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeNotConnected:
		return "not-connected"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Reply is the result of one read from the mount.
type Reply struct {
	Text    string
	Outcome Outcome
	Err     error
}

// Valid reports whether the reply carries usable text. A timeout still
// counts: its text is whatever arrived before the deadline, possibly empty.
func (r Reply) Valid() bool {
	return r.Outcome == OutcomeOK || r.Outcome == OutcomeTimeout
}
