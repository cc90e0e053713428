// Package pid keeps a single daemon instance per management controller.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/bmcfanctl/internal/errors"
)

const localHost = "local"

// Dir holds the pid files; tests point it elsewhere.
var Dir = os.TempDir()

// Path returns the pid file for the controller at host. An empty host
// means the local in-band interface.
func Path(host string) string {
	if host == "" {
		host = localHost
	}
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, host)

	return filepath.Join(Dir, "bmcfanctl-"+name+".pid")
}

// Write writes the current process ID to the pid file for host. It fails
// with ErrAlreadyRunning if another live process owns the controller.
func Write(host string) error {
	errFactory := errors.New()
	path := Path(host)

	if data, err := os.ReadFile(path); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && alive(pid) {
			return errFactory.WithData(errors.ErrAlreadyRunning, struct {
				Host string
				PID  int
			}{
				Host: host,
				PID:  pid,
			})
		}
	} else if !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove removes the pid file for host.
func Remove(host string) error {
	if err := os.Remove(Path(host)); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}

func alive(pid int) bool {
	if pid <= 0 || pid == os.Getpid() {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
