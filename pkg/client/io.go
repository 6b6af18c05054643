package client

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/gotftp/tftp/pkg/tftp"
)

// teeSink fans an Event out to two sinks, used to add a console trace
// on top of whatever the caller already wired for logging.
type teeSink struct{ a, b tftp.EventSink }

func (t teeSink) Emit(e tftp.Event) {
	t.a.Emit(e)
	t.b.Emit(e)
}

// consoleSink prints one line per packet event to stdout, the
// equivalent of the teacher's "trace" CLI command.
type consoleSink struct{}

func (consoleSink) Emit(e tftp.Event) {
	if e.Kind != tftp.KindPacket {
		return
	}

	fmt.Printf("%s %s block=%d %s\n", e.Direction, e.Packet, e.Block, peerString(e.Peer))
}

func peerString(a interface{ String() string }) string {
	if a == nil {
		return ""
	}

	return a.String()
}

// fileSource adapts *os.File to tftp.ByteSource for the local file
// being uploaded by a Put.
type fileSource struct{ f *os.File }

func (s fileSource) Read(buf []byte) (int, error) { return s.f.Read(buf) }

// fileSink adapts *os.File to tftp.ByteSink for a Get's local
// destination. Abort removes the partially written file.
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

	if closeErr != nil {
		return closeErr
	}

	return removeErr
}

// openDestination opens path for a Get. The pre-send existence check
// (spec: the client never silently overwrites) lives here, on the host
// side of the engine boundary.
func openDestination(path string) (fileSink, error) {
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

// stageStdin drains stdin into a fresh temporary file under the OS temp
// directory and rewinds it, so its size is known up front for a Put's
// tsize announcement. The caller removes the returned path once the
// transfer ends.
func stageStdin() (fileSource, uint64, string, error) {
	tmp, err := os.CreateTemp("", "tftp-put-*.tmp")
	if err != nil {
		return fileSource{}, 0, "", fmt.Errorf("creating stdin staging file: %w", err)
	}

	if _, err := io.Copy(tmp, os.Stdin); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fileSource{}, 0, "", fmt.Errorf("staging stdin: %w", err)
	}

	info, err := tmp.Stat()
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fileSource{}, 0, "", fmt.Errorf("stating staged file: %w", err)
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fileSource{}, 0, "", fmt.Errorf("rewinding staged file: %w", err)
	}

	return fileSource{f: tmp}, uint64(info.Size()), tmp.Name(), nil
}

// freeSpaceAt reports whether at least required bytes are free on the
// filesystem holding dir, via statfs(2). It backs the CheckSpace hook
// consulted when a read negotiates tsize.
func freeSpaceAt(dir string, required uint64) (bool, error) {
	var stat unix.Statfs_t

	if err := unix.Statfs(dir, &stat); err != nil {
		return false, fmt.Errorf("statfs %s: %w", dir, err)
	}

	available := stat.Bavail * uint64(stat.Bsize)

	return available >= required, nil
}
