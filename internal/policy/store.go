package policy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"codeberg.org/mutker/bmcfanctl/internal/errors"
	"codeberg.org/mutker/bmcfanctl/internal/logger"
)

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
	corruptSuffix   = ".corrupt"
)

// Store is the durable home of the policy.
type Store interface {
	Load() Policy
	Save(p Policy) error
}

// FileStore keeps the policy in a single JSON file. Writes go to a temporary
// file in the same directory and are renamed into place, so a reader sees
// either the old or the new policy, never a partial one.
type FileStore struct {
	path   string
	def    Policy
	last   Policy
	mu     sync.Mutex
	logger logger.Logger

	rename func(oldpath, newpath string) error
}

// Open returns a store for path. A missing or unreadable file is never an
// error: Load falls back to def.
func Open(path string, def Policy, log logger.Logger) *FileStore {
	s := &FileStore{
		path:   path,
		def:    def,
		last:   def,
		logger: log,
		rename: os.Rename,
	}

	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to create policy directory")
	}

	return s
}

func (s *FileStore) Path() string {
	return s.path
}

// Load reads the stored policy. A missing file yields the default, which is
// then written out. A corrupt file is moved aside and replaced by the
// default. Transient read errors return the last policy known to be good.
func (s *FileStore) Load() Policy {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	switch {
	case os.IsNotExist(err):
		s.logger.Info().Str("path", s.path).Str("policy", s.def.String()).Msg("No stored policy, using default")
		s.resetLocked()
		return s.last
	case err != nil:
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to read policy, keeping last known good")
		return s.last
	}

	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Str("policy", s.def.String()).
			Msg("Stored policy is corrupt, resetting to default")
		if err := s.rename(s.path, s.path+corruptSuffix); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to move corrupt policy aside")
		}
		s.resetLocked()
		return s.last
	}

	s.last = p

	return p
}

// Save validates and atomically replaces the stored policy. On failure the
// previously stored policy is left untouched.
func (s *FileStore) Save(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeLocked(p); err != nil {
		return errors.New().Wrap(errors.ErrPersistenceFailed, err)
	}
	s.last = p

	return nil
}

func (s *FileStore) resetLocked() {
	s.last = s.def
	if err := s.writeLocked(s.def); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to persist default policy")
	}
}

func (s *FileStore) writeLocked(p Policy) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, defaultFilePerm); err != nil {
		return err
	}
	if err := s.rename(tmpPath, s.path); err != nil {
		return err
	}
	committed = true

	// The rename is durable only once the directory entry is flushed
	if d, err := os.Open(dir); err == nil {
		if err := d.Sync(); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to sync policy directory")
		}
		d.Close()
	}

	return nil
}
