package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// stagedFiles writes artifacts to temporary files next to their targets and
// renames them into place only on commit, so an index and its corpus are
// replaced together or not at all.
type stagedFiles struct {
	pending []stagedFile
}

type stagedFile struct {
	tmp    string
	target string
}

func (s *stagedFiles) stage(path string, write func(f *os.File) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	s.pending = append(s.pending, stagedFile{tmp: tmp.Name(), target: path})
	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return tmp.Close()
}

// commit renames every staged file onto its target.
func (s *stagedFiles) commit() error {
	for i, f := range s.pending {
		if err := os.Rename(f.tmp, f.target); err != nil {
			s.pending = s.pending[i:]
			return errors.Join(fmt.Errorf("install %s: %w", f.target, err), s.abort())
		}
	}
	s.pending = nil
	return nil
}

// abort removes staged files that were not committed.
func (s *stagedFiles) abort() error {
	var errs []error
	for _, f := range s.pending {
		if err := os.Remove(f.tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	s.pending = nil
	return errors.Join(errs...)
}
