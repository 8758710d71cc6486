package pipeline

import (
	"os"
)

// spool is a temporary file holding one backup run's fully transformed
// artifact, written once and then read back for every destination (up to
// maxConcurrentDestinations at once) — satisfying the "at most one dump per
// run" requirement (spec §4.4 step 4) without needing to multiplex the dump
// into N concurrent destination writers.
type spool struct {
	file *os.File
	size int64
}

func newSpool() (*spool, error) {
	f, err := os.CreateTemp("", "dbsentinel-spool-*")
	if err != nil {
		return nil, err
	}
	return &spool{file: f}, nil
}

// reader reopens the spool for an independent, seek-from-start read. Each
// destination gets its own *os.File handle so fanOut's concurrent Put calls
// don't race over a shared offset.
func (s *spool) reader() (*os.File, error) {
	return os.Open(s.file.Name())
}

// statSize records the spool's final size after the dump/compress/encrypt
// chain has finished writing to it, for reporting and for Put's size hint.
func (s *spool) statSize() error {
	info, err := s.file.Stat()
	if err != nil {
		return err
	}
	s.size = info.Size()
	return nil
}

func (s *spool) close() {
	s.file.Close()
	os.Remove(s.file.Name())
}
