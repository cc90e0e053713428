// Package policy holds the operator's desired fan behaviour and its durable
// on-disk form. The stored policy is the only source of truth for fan state.
package policy

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"codeberg.org/mutker/bmcfanctl/internal/errors"
)

type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// Policy is either automatic fan control or a fixed percentage.
// Percent is only meaningful for ModeManual.
type Policy struct {
	Mode    Mode
	Percent int
}

func Auto() Policy {
	return Policy{Mode: ModeAuto}
}

func Manual(percent int) Policy {
	return Policy{Mode: ModeManual, Percent: percent}
}

// Default returns the first-run policy: automatic for a negative percent,
// otherwise a fixed percentage.
func Default(percent int) Policy {
	if percent < 0 {
		return Auto()
	}

	return Manual(min(percent, 100))
}

func (p Policy) IsManual() bool {
	return p.Mode == ModeManual
}

func (p Policy) String() string {
	if p.Mode == ModeManual {
		return fmt.Sprintf("%s:%d", ModeManual, p.Percent)
	}

	return string(p.Mode)
}

// Validate rejects unknown modes and out-of-range percentages.
func (p Policy) Validate() error {
	errFactory := errors.New()

	switch p.Mode {
	case ModeAuto:
		return nil
	case ModeManual:
		if p.Percent < 0 || p.Percent > 100 {
			return errFactory.WithData(errors.ErrInvalidPercent, p.Percent)
		}
		return nil
	default:
		return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf("unknown fan mode %q", p.Mode))
	}
}

// Parse reads the textual form produced by String ("auto", "manual:30").
func Parse(s string) (Policy, error) {
	errFactory := errors.New()

	s = strings.TrimSpace(strings.ToLower(s))
	if s == string(ModeAuto) {
		return Auto(), nil
	}

	rest, ok := strings.CutPrefix(s, string(ModeManual)+":")
	if !ok {
		return Policy{}, errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf("unknown policy %q", s))
	}

	percent, err := strconv.Atoi(rest)
	if err != nil {
		return Policy{}, errFactory.Wrap(errors.ErrInvalidPercent, err)
	}

	p := Manual(percent)
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}

	return p, nil
}

// record is the persisted form: {"mode":"manual","percent":30}, with a null
// percent for automatic mode.
type record struct {
	Mode    Mode `json:"mode"`
	Percent *int `json:"percent"`
}

func (p Policy) MarshalJSON() ([]byte, error) {
	r := record{Mode: p.Mode}
	if p.Mode == ModeManual {
		percent := p.Percent
		r.Percent = &percent
	}

	return json.Marshal(r)
}

func (p *Policy) UnmarshalJSON(data []byte) error {
	errFactory := errors.New()

	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	decoded := Policy{Mode: r.Mode}
	if r.Mode == ModeManual {
		if r.Percent == nil {
			return errFactory.WithMessage(errors.ErrInvalidConfig, "manual policy without percent")
		}
		decoded.Percent = *r.Percent
	}

	if err := decoded.Validate(); err != nil {
		return err
	}

	*p = decoded

	return nil
}
