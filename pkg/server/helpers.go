package server

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/gotftp/tftp/pkg/tftp"
)

// resolvePath joins root and filename and rejects any result that
// escapes root, whether via ".." segments or an absolute filename.
func resolvePath(root, filename string) (string, error) {
	cleanRoot := filepath.Clean(root)
	joined := filepath.Join(cleanRoot, filename)

	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return "", &tftp.AccessViolationError{Reason: "path escapes server root: " + filename}
	}

	return joined, nil
}

// fileSource adapts *os.File to tftp.ByteSource for a read transfer.
type fileSource struct{ f *os.File }

func (s fileSource) Read(buf []byte) (int, error) { return s.f.Read(buf) }
func (s fileSource) Close() error                 { return s.f.Close() }

// openForRead opens path for a RRQ, translating filesystem errors into
// the wire error taxonomy the engine expects.
func openForRead(path string) (fileSource, uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fileSource{}, 0, &tftp.FileNotFoundError{Filename: path}
		}

		return fileSource{}, 0, &tftp.AccessViolationError{Reason: err.Error()}
	}

	if info.IsDir() {
		return fileSource{}, 0, &tftp.AccessViolationError{Reason: "is a directory"}
	}

	f, err := os.Open(path)
	if err != nil {
		return fileSource{}, 0, &tftp.AccessViolationError{Reason: err.Error()}
	}

	return fileSource{f: f}, uint64(info.Size()), nil
}

// fileSink adapts *os.File to tftp.ByteSink for a write transfer.
// Abort closes and removes the partially written file so a failed
// upload never leaves debris behind (spec's cleanup-on-abort rule).
type fileSink struct {
	f    *os.File
	path string
}

func (s fileSink) Write(buf []byte) error {
	_, err := s.f.Write(buf)

	return err
}

func (s fileSink) Abort() error {
	closeErr := s.f.Close()
	removeErr := os.Remove(s.path)

	return errors.Join(closeErr, removeErr)
}

func (s fileSink) Close() error { return s.f.Close() }

// openForWrite opens path for a WRQ. The file must not already exist:
// TFTP write requests never overwrite.
func openForWrite(path string) (fileSink, error) {
	if _, err := os.Stat(path); err == nil {
		return fileSink{}, &tftp.FileExistsError{Filename: path}
	} else if !os.IsNotExist(err) {
		return fileSink{}, &tftp.AccessViolationError{Reason: err.Error()}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fileSink{}, &tftp.AccessViolationError{Reason: err.Error()}
	}

	return fileSink{f: f, path: path}, nil
}
