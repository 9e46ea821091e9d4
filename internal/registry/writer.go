// Package registry writes the audit tables and stage hand-off files.
//
// Every file of a stage is first written to a temporary file in the output
// directory and renamed into place only when the whole stage has been
// staged, so an interrupted run never leaves a half-written table behind.
package registry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Output file names
const (
	ExtractionErrorsFile = "extraction_errors.csv"
	RegistryFile         = "registry.csv"
	EnrichedFile         = "enriched.jsonl"
	AdjudicationsFile    = "adjudications.csv"
	AdjudicationsJSONL   = "adjudications.jsonl"
	RewritesFile         = "rewrites.csv"
	SummaryFile          = "summary.csv"
)

type stagedFile struct {
	tmp   string
	final string
}

// Stage collects the files of one stage for an atomic commit
type Stage struct {
	dir   string
	files []stagedFile
}

// NewStage creates the output directory if needed
func NewStage(dir string) (*Stage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Stage{dir: dir}, nil
}

// Write stages one file produced by write
func (s *Stage) Write(name string, write func(io.Writer) error) error {
	f, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	tmp := f.Name()

	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close %s: %w", name, err)
	}

	s.files = append(s.files, stagedFile{tmp: tmp, final: filepath.Join(s.dir, name)})
	return nil
}

// Commit renames every staged file into place
func (s *Stage) Commit() error {
	for i, f := range s.files {
		if err := os.Rename(f.tmp, f.final); err != nil {
			s.files = s.files[i:]
			s.Abort()
			return fmt.Errorf("commit %s: %w", filepath.Base(f.final), err)
		}
	}
	s.files = nil
	return nil
}

// Abort removes staged files that were not committed
func (s *Stage) Abort() {
	for _, f := range s.files {
		_ = os.Remove(f.tmp)
	}
	s.files = nil
}

// Path returns the full path of an output file
func Path(dir, name string) string {
	return filepath.Join(dir, name)
}
