package ipmi

import "context"

// Controller is the set of operations the daemon needs from a management
// controller. Every call is bounded by the client's command timeout.
type Controller interface {
	Probe(ctx context.Context) error
	ReadSensors(ctx context.Context) ([]Reading, error)
	EnableManualControl(ctx context.Context) error
	SetManualPercent(ctx context.Context, percent int) error
	DisableManualControl(ctx context.Context) error
	ManualModeActive(ctx context.Context) (bool, error)
}

// Runner executes one ipmitool invocation and returns its trimmed stdout.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// Reading is a single fan tachometer value.
type Reading struct {
	FanID string
	RPM   int
}
