// Package ipmitest provides an in-memory controller for tests.
package ipmitest

import (
	"context"
	"sync"

	"codeberg.org/mutker/bmcfanctl/internal/errors"
	"codeberg.org/mutker/bmcfanctl/internal/ipmi"
)

// Controller simulates a management controller. The zero value is
// unreachable; use New for a ready controller.
type Controller struct {
	mu sync.Mutex

	reachable    bool
	sensorsReady bool
	failControl  bool
	readings     []ipmi.Reading

	manual  bool
	percent int
	calls   []string
}

// New returns a reachable controller with ready sensors and automatic fan
// control.
func New(readings ...ipmi.Reading) *Controller {
	return &Controller{reachable: true, sensorsReady: true, readings: readings}
}

func (c *Controller) SetReachable(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reachable = v
}

func (c *Controller) SetSensorsReady(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sensorsReady = v
}

// SetFailControl makes control commands fail while the controller stays
// reachable.
func (c *Controller) SetFailControl(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failControl = v
}

func (c *Controller) SetReadings(readings ...ipmi.Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readings = readings
}

// Revert drops static fan control without telling anyone, the way some
// controllers do after an internal reset.
func (c *Controller) Revert() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manual = false
}

// State returns the simulated fan mode and percent.
func (c *Controller) State() (manual bool, percent int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manual, c.percent
}

// Calls returns the names of control operations in call order.
func (c *Controller) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *Controller) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

func (c *Controller) Probe(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.reachable {
		return errors.New().New(errors.ErrUnreachable)
	}
	return nil
}

func (c *Controller) ReadSensors(context.Context) ([]ipmi.Reading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.reachable {
		return nil, errors.New().New(errors.ErrUnreachable)
	}
	if !c.sensorsReady || len(c.readings) == 0 {
		return nil, errors.New().New(errors.ErrSensorsNotReady)
	}
	return append([]ipmi.Reading(nil), c.readings...), nil
}

func (c *Controller) EnableManualControl(context.Context) error {
	return c.control("enable", func() { c.manual = true })
}

func (c *Controller) DisableManualControl(context.Context) error {
	return c.control("disable", func() { c.manual = false })
}

func (c *Controller) SetManualPercent(_ context.Context, percent int) error {
	if percent < 0 || percent > 100 {
		return errors.New().WithData(errors.ErrInvalidPercent, percent)
	}
	return c.control("set", func() { c.percent = percent })
}

func (c *Controller) ManualModeActive(context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.reachable {
		return false, errors.New().New(errors.ErrUnreachable)
	}
	return c.manual, nil
}

func (c *Controller) control(name string, apply func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
	if !c.reachable {
		return errors.New().New(errors.ErrUnreachable)
	}
	if c.failControl {
		return errors.New().New(errors.ErrCommandFailed)
	}
	apply()
	return nil
}
