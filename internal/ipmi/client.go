package ipmi

import (
	"context"
	"fmt"

	"codeberg.org/mutker/bmcfanctl/internal/errors"
	"codeberg.org/mutker/bmcfanctl/internal/logger"
)

// Raw command bytes for Dell 12th/13th generation iDRAC fan control.
var (
	cmdProbe         = []string{"chassis", "power", "status"}
	cmdSensors       = []string{"sdr", "type", "Fan"}
	cmdManualQuery   = []string{"raw", "0x30", "0x30", "0x01"}
	cmdManualEnable  = []string{"raw", "0x30", "0x30", "0x01", "0x00"}
	cmdManualDisable = []string{"raw", "0x30", "0x30", "0x01", "0x01"}
	cmdSetPercent    = []string{"raw", "0x30", "0x30", "0x02", "0xff"}
)

// Client implements Controller on top of a Runner.
type Client struct {
	runner Runner
	logger logger.Logger
}

func NewClient(runner Runner, log logger.Logger) *Client {
	return &Client{runner: runner, logger: log}
}

// Probe checks that the controller answers at all.
func (c *Client) Probe(ctx context.Context) error {
	if _, err := c.runner.Run(ctx, cmdProbe...); err != nil {
		return asUnreachable(err)
	}

	return nil
}

// ReadSensors returns the fan readings in the order the controller lists them.
func (c *Client) ReadSensors(ctx context.Context) ([]Reading, error) {
	errFactory := errors.New()

	out, err := c.runner.Run(ctx, cmdSensors...)
	if err != nil {
		if errors.HasCode(err, errors.ErrCommandFailed) && isSDRFailure(stderrOf(err)) && !isSessionFailure(stderrOf(err)) {
			return nil, errFactory.Wrap(errors.ErrSensorsNotReady, err)
		}
		return nil, asUnreachable(err)
	}

	readings := ParseFanSDR(out)
	if len(readings) == 0 {
		return nil, errFactory.WithMessage(errors.ErrSensorsNotReady, "no fan readings in sensor repository")
	}

	return readings, nil
}

func (c *Client) EnableManualControl(ctx context.Context) error {
	return c.control(ctx, cmdManualEnable)
}

func (c *Client) DisableManualControl(ctx context.Context) error {
	return c.control(ctx, cmdManualDisable)
}

// SetManualPercent sets every fan to percent. Values outside 0..100 are
// rejected without contacting the controller.
func (c *Client) SetManualPercent(ctx context.Context, percent int) error {
	if percent < 0 || percent > 100 {
		return errors.New().WithData(errors.ErrInvalidPercent, percent)
	}

	args := append(append([]string{}, cmdSetPercent...), fmt.Sprintf("0x%02x", percent))
	return c.control(ctx, args)
}

// ManualModeActive reports whether the controller currently has static fan
// control enabled.
func (c *Client) ManualModeActive(ctx context.Context) (bool, error) {
	out, err := c.runner.Run(ctx, cmdManualQuery...)
	if err != nil {
		return false, classifyControl(err)
	}

	return out == "00", nil
}

func (c *Client) control(ctx context.Context, args []string) error {
	if _, err := c.runner.Run(ctx, args...); err != nil {
		err = classifyControl(err)
		c.logger.Debug().Err(err).Strs("args", args).Msg("Control command failed")
		return err
	}

	return nil
}

// classifyControl keeps CommandFailed for controller-side rejections but
// downgrades session failures to Unreachable.
func classifyControl(err error) error {
	if errors.HasCode(err, errors.ErrCommandFailed) && isSessionFailure(stderrOf(err)) {
		return errors.New().Wrap(errors.ErrUnreachable, err)
	}

	return err
}

func asUnreachable(err error) error {
	if errors.HasCode(err, errors.ErrUnreachable) {
		return err
	}

	return errors.New().Wrap(errors.ErrUnreachable, err)
}
