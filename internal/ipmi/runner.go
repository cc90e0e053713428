package ipmi

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"codeberg.org/mutker/bmcfanctl/internal/errors"
	"codeberg.org/mutker/bmcfanctl/internal/logger"
)

// waitDelay bounds how long Run waits for output pipes after the process
// has been killed on timeout.
const waitDelay = 500 * time.Millisecond

// Options holds the connection parameters of the controller.
type Options struct {
	Path      string
	Host      string
	Username  string
	Password  string
	Interface string
	Timeout   time.Duration
}

// ExecRunner runs ipmitool as a subprocess. The password is passed through
// the IPMI_PASSWORD environment variable (-E) so it never shows up in the
// process list.
type ExecRunner struct {
	path    string
	base    []string
	env     []string
	timeout time.Duration
	logger  logger.Logger
}

func NewExecRunner(opts Options, log logger.Logger) *ExecRunner {
	r := &ExecRunner{
		path:    opts.Path,
		timeout: opts.Timeout,
		logger:  log,
		env:     os.Environ(),
	}
	if r.path == "" {
		r.path = "ipmitool"
	}

	if opts.Host != "" {
		iface := opts.Interface
		if iface == "" {
			iface = "lanplus"
		}
		r.base = []string{"-I", iface, "-H", opts.Host, "-U", opts.Username, "-E"}
		r.env = append(r.env, "IPMI_PASSWORD="+opts.Password)
	}

	return r
}

func (r *ExecRunner) Run(ctx context.Context, args ...string) (string, error) {
	errFactory := errors.New()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.path, append(append([]string{}, r.base...), args...)...)
	cmd.Env = r.env
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug().Strs("args", args).Msg("Running ipmitool")

	err := cmd.Run()
	if ctx.Err() != nil {
		return "", errFactory.Wrap(errors.ErrUnreachable, ctx.Err()).
			WithMessage("ipmitool " + strings.Join(args, " ") + " timed out")
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", errFactory.Wrap(errors.ErrCommandFailed, &CommandError{
				Args:     args,
				ExitCode: exitErr.ExitCode(),
				Stderr:   stderr.String(),
			})
		}
		return "", errFactory.Wrap(errors.ErrUnreachable, err)
	}

	return strings.TrimSpace(stdout.String()), nil
}
