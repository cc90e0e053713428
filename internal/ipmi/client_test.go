package ipmi_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"codeberg.org/mutker/bmcfanctl/internal/errors"
	"codeberg.org/mutker/bmcfanctl/internal/ipmi"
	"codeberg.org/mutker/bmcfanctl/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type response struct {
	out string
	err error
}

// scriptedRunner answers by the joined argument string.
type scriptedRunner struct {
	responses map[string]response
	calls     []string
}

func (r *scriptedRunner) Run(_ context.Context, args ...string) (string, error) {
	key := strings.Join(args, " ")
	r.calls = append(r.calls, key)
	resp, ok := r.responses[key]
	if !ok {
		return "", nil
	}
	return resp.out, resp.err
}

func commandFailed(stderr string) error {
	return errors.New().Wrap(errors.ErrCommandFailed, &ipmi.CommandError{ExitCode: 1, Stderr: stderr})
}

const fanSDR = `Fan1 RPM         | 30h | ok  |  7.1 | 3600 RPM
Fan2 RPM         | 31h | ok  |  7.1 | 3480 RPM
Fan3 RPM         | 32h | ns  |  7.1 | No Reading
Fan Redundancy   | 75h | ok  |  7.1 | Fully Redundant`

func TestReadSensors(t *testing.T) {
	r := &scriptedRunner{responses: map[string]response{
		"sdr type Fan": {out: fanSDR},
	}}
	c := ipmi.NewClient(r, logger.Nop())

	readings, err := c.ReadSensors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []ipmi.Reading{{FanID: "Fan1", RPM: 3600}, {FanID: "Fan2", RPM: 3480}}, readings)
}

func TestReadSensorsClassification(t *testing.T) {
	tests := []struct {
		name string
		resp response
		want ipmi.Outcome
	}{
		{"no fan rows", response{out: "Fan1 RPM | 30h | ns | 7.1 | No Reading"}, ipmi.SensorsNotReady},
		{"sdr error", response{err: commandFailed("Unable to obtain SDR reservation")}, ipmi.SensorsNotReady},
		{"session error", response{err: commandFailed("Error: Unable to establish IPMI v2 / RMCP+ session")}, ipmi.Unreachable},
		{"timeout", response{err: errors.New().New(errors.ErrUnreachable)}, ipmi.Unreachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &scriptedRunner{responses: map[string]response{"sdr type Fan": tt.resp}}
			_, err := ipmi.NewClient(r, logger.Nop()).ReadSensors(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.want, ipmi.OutcomeOf(err))
		})
	}
}

func TestProbe(t *testing.T) {
	r := &scriptedRunner{responses: map[string]response{
		"chassis power status": {err: commandFailed("Error: Unable to establish IPMI v2 / RMCP+ session")},
	}}
	err := ipmi.NewClient(r, logger.Nop()).Probe(context.Background())
	assert.Equal(t, ipmi.Unreachable, ipmi.OutcomeOf(err))

	r.responses["chassis power status"] = response{out: "Chassis Power is off"}
	assert.NoError(t, ipmi.NewClient(r, logger.Nop()).Probe(context.Background()))
}

func TestControlCommands(t *testing.T) {
	r := &scriptedRunner{responses: map[string]response{}}
	c := ipmi.NewClient(r, logger.Nop())
	ctx := context.Background()

	require.NoError(t, c.EnableManualControl(ctx))
	require.NoError(t, c.SetManualPercent(ctx, 30))
	require.NoError(t, c.SetManualPercent(ctx, 100))
	require.NoError(t, c.DisableManualControl(ctx))

	assert.Equal(t, []string{
		"raw 0x30 0x30 0x01 0x00",
		"raw 0x30 0x30 0x02 0xff 0x1e",
		"raw 0x30 0x30 0x02 0xff 0x64",
		"raw 0x30 0x30 0x01 0x01",
	}, r.calls)
}

func TestSetManualPercentOutOfRange(t *testing.T) {
	r := &scriptedRunner{responses: map[string]response{}}
	c := ipmi.NewClient(r, logger.Nop())

	for _, p := range []int{-1, 101} {
		err := c.SetManualPercent(context.Background(), p)
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrInvalidPercent))
	}
	assert.Empty(t, r.calls, "no command may be issued for an invalid percent")
}

func TestControlFailureClassification(t *testing.T) {
	r := &scriptedRunner{responses: map[string]response{
		"raw 0x30 0x30 0x01 0x00": {err: commandFailed("Unable to send RAW command (rsp=0xc1)")},
		"raw 0x30 0x30 0x01 0x01": {err: commandFailed("Error: Unable to establish LAN session")},
	}}
	c := ipmi.NewClient(r, logger.Nop())

	assert.Equal(t, ipmi.CommandFailed, ipmi.OutcomeOf(c.EnableManualControl(context.Background())))
	assert.Equal(t, ipmi.Unreachable, ipmi.OutcomeOf(c.DisableManualControl(context.Background())))
}

func TestManualModeActive(t *testing.T) {
	r := &scriptedRunner{responses: map[string]response{"raw 0x30 0x30 0x01": {out: "00"}}}
	active, err := ipmi.NewClient(r, logger.Nop()).ManualModeActive(context.Background())
	require.NoError(t, err)
	assert.True(t, active)

	r.responses["raw 0x30 0x30 0x01"] = response{out: "01"}
	active, err = ipmi.NewClient(r, logger.Nop()).ManualModeActive(context.Background())
	require.NoError(t, err)
	assert.False(t, active)
}

func TestOutcomeOf(t *testing.T) {
	f := errors.New()
	assert.Equal(t, ipmi.OK, ipmi.OutcomeOf(nil))
	assert.Equal(t, ipmi.Unreachable, ipmi.OutcomeOf(f.New(errors.ErrUnreachable)))
	assert.Equal(t, ipmi.SensorsNotReady, ipmi.OutcomeOf(f.New(errors.ErrSensorsNotReady)))
	assert.Equal(t, ipmi.CommandFailed, ipmi.OutcomeOf(f.New(errors.ErrCommandFailed)))
	assert.Equal(t, ipmi.Unreachable, ipmi.OutcomeOf(f.New(errors.ErrInternal)))
	assert.Equal(t, "sensors_not_ready", ipmi.SensorsNotReady.String())
}

func TestExecRunner(t *testing.T) {
	log := logger.Nop()

	t.Run("stdout", func(t *testing.T) {
		r := ipmi.NewExecRunner(ipmi.Options{Path: "/bin/sh", Timeout: 5 * time.Second}, log)
		out, err := r.Run(context.Background(), "-c", "echo ' 00 '")
		require.NoError(t, err)
		assert.Equal(t, "00", out)
	})

	t.Run("non-zero exit", func(t *testing.T) {
		r := ipmi.NewExecRunner(ipmi.Options{Path: "/bin/sh", Timeout: 5 * time.Second}, log)
		_, err := r.Run(context.Background(), "-c", "echo 'Invalid command' >&2; exit 1")
		require.Error(t, err)
		assert.Equal(t, ipmi.CommandFailed, ipmi.OutcomeOf(err))
		assert.Contains(t, err.Error(), "Invalid command")
	})

	t.Run("timeout", func(t *testing.T) {
		r := ipmi.NewExecRunner(ipmi.Options{Path: "/bin/sh", Timeout: 50 * time.Millisecond}, log)
		start := time.Now()
		_, err := r.Run(context.Background(), "-c", "sleep 5")
		require.Error(t, err)
		assert.Equal(t, ipmi.Unreachable, ipmi.OutcomeOf(err))
		assert.Less(t, time.Since(start), 4*time.Second)
	})

	t.Run("missing binary", func(t *testing.T) {
		r := ipmi.NewExecRunner(ipmi.Options{Path: "/nonexistent/ipmitool", Timeout: time.Second}, log)
		_, err := r.Run(context.Background(), "chassis", "power", "status")
		assert.Equal(t, ipmi.Unreachable, ipmi.OutcomeOf(err))
	})
}
