package ipmi

import (
	"fmt"
	"strings"

	"codeberg.org/mutker/bmcfanctl/internal/errors"
)

// Outcome is the result class of a controller call. Callers branch on
// outcomes, not on error text.
type Outcome int

const (
	OK Outcome = iota
	Unreachable
	SensorsNotReady
	CommandFailed
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case Unreachable:
		return "unreachable"
	case SensorsNotReady:
		return "sensors_not_ready"
	case CommandFailed:
		return "command_failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// OutcomeOf classifies err. Errors without a controller code are treated as
// Unreachable so that they are retried rather than trusted.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OK
	case errors.HasCode(err, errors.ErrSensorsNotReady):
		return SensorsNotReady
	case errors.HasCode(err, errors.ErrUnreachable):
		return Unreachable
	case errors.HasCode(err, errors.ErrCommandFailed), errors.HasCode(err, errors.ErrInvalidPercent):
		return CommandFailed
	default:
		return Unreachable
	}
}

// CommandError describes an ipmitool invocation that exited non-zero.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("ipmitool %s: exit status %d: %s",
		strings.Join(e.Args, " "), e.ExitCode, strings.TrimSpace(e.Stderr))
}

func stderrOf(err error) string {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Stderr
	}

	return ""
}

// ipmitool messages that mean the session never reached the controller
var sessionFailures = []string{
	"Unable to establish",
	"Error: Unable to establish IPMI",
	"Get Session Challenge",
	"Activate Session",
	"no response",
	"Insufficient privilege",
}

func isSessionFailure(stderr string) bool {
	for _, s := range sessionFailures {
		if strings.Contains(stderr, s) {
			return true
		}
	}

	return false
}

// isSDRFailure matches the errors ipmitool prints while the sensor
// repository is still being populated after a controller reset.
func isSDRFailure(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "sdr") || strings.Contains(s, "sensor")
}
