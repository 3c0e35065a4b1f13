// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

// Package redirector pipes a supervised child's stdout/stderr to rotatable
// log files. Each stream gets its own pipe and worker goroutine that polls
// the read end with a bounded timeout, line-splits what it reads, and
// detects external log rotation by inode change.
package redirector

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/tomtom215/fleetsupervisor/internal/ferrors"
)

// ReadTimeout bounds each poll of the pipe's read end, matching spec.md
// §4.5's 250ms select timeout: long enough to avoid busy-looping, short
// enough that Stop and rotation checks are timely.
const ReadTimeout = 250 * time.Millisecond

// ReadChunkSize is the maximum bytes read per poll.
const ReadChunkSize = 1024

// LineFilter transforms a log line before it is written. The default is a
// no-op; it is reserved for redaction.
type LineFilter func(line []byte) []byte

// NoopFilter passes lines through unchanged.
func NoopFilter(line []byte) []byte { return line }

// stream is one redirected pipe (stdout or stderr; there is no stream for
// the supervisor's own log).
type stream struct {
	name      string
	logPath   string
	filter    LineFilter
	readEnd   *os.File
	writeEnd  *os.File
	remainder []byte
	logFile   *os.File
	logIno    uint64
	done      chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
}

// Redirector manages the stdout and stderr streams for one supervised
// child, each writing to <basePath>-out.log and <basePath>-error.log.
type Redirector struct {
	basePath string
	Filter   LineFilter

	stdout *stream
	stderr *stream
}

// New returns a Redirector that will write to <basePath>-out.log and
// <basePath>-error.log once Start is called.
func New(basePath string) (*Redirector, error) {
	if err := os.MkdirAll(filepath.Dir(basePath), 0o755); err != nil {
		return nil, ferrors.Wrap(ferrors.KindFilesystem, "redirector.new", "creating log directory", err)
	}
	return &Redirector{basePath: basePath, Filter: NoopFilter}, nil
}

// Start creates the stdout/stderr pipes and worker goroutines, returning
// the write ends to hand to exec.Cmd.Stdout/Stderr.
func (r *Redirector) Start() (stdoutW, stderrW *os.File, err error) {
	r.stdout, err = newStream("stdout", r.basePath+"-out.log", r.filterOrNoop())
	if err != nil {
		return nil, nil, err
	}
	r.stderr, err = newStream("stderr", r.basePath+"-error.log", r.filterOrNoop())
	if err != nil {
		r.stdout.close()
		return nil, nil, err
	}
	r.stdout.run()
	r.stderr.run()
	return r.stdout.writeEnd, r.stderr.writeEnd, nil
}

func (r *Redirector) filterOrNoop() LineFilter {
	if r.Filter != nil {
		return r.Filter
	}
	return NoopFilter
}

// Rotate asks both streams to reopen their log file on the next write,
// simulating the effect of an external rotation (e.g. from WINCH).
func (r *Redirector) Rotate() {
	if r.stdout != nil {
		r.stdout.forceReopen()
	}
	if r.stderr != nil {
		r.stderr.forceReopen()
	}
}

// Stop drains any remaining buffered data, flushes, and closes both streams.
func (r *Redirector) Stop() {
	if r.stdout != nil {
		r.stdout.stop()
	}
	if r.stderr != nil {
		r.stderr.stop()
	}
}

func newStream(name, logPath string, filter LineFilter) (*stream, error) {
	readEnd, writeEnd, err := os.Pipe()
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindFilesystem, "redirector.pipe", "creating pipe for "+name, err)
	}
	s := &stream{
		name:     name,
		logPath:  logPath,
		filter:   filter,
		readEnd:  readEnd,
		writeEnd: writeEnd,
		done:     make(chan struct{}),
	}
	if err := s.openLog(); err != nil {
		readEnd.Close()
		writeEnd.Close()
		return nil, err
	}
	return s, nil
}

func (s *stream) openLog() error {
	if err := os.MkdirAll(filepath.Dir(s.logPath), 0o755); err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "redirector.open_log", "recreating log directory", err)
	}
	f, err := os.OpenFile(s.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "redirector.open_log", "opening log file", err)
	}
	var st syscall.Stat_t
	if err := syscall.Fstat(int(f.Fd()), &st); err != nil {
		f.Close()
		return ferrors.Wrap(ferrors.KindFilesystem, "redirector.open_log", "statting log file", err)
	}
	if s.logFile != nil {
		s.logFile.Close()
	}
	s.logFile = f
	s.logIno = st.Ino
	return nil
}

func (s *stream) forceReopen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logIno = 0 // forces checkRotation to reopen on the next write
}

// checkRotation reopens the log file if its on-disk inode no longer
// matches our open handle's (external rotation), or recreates it if the
// log directory itself was removed out from under us.
func (s *stream) checkRotation() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st syscall.Stat_t
	err := syscall.Stat(s.logPath, &st)
	if err != nil || st.Ino != s.logIno {
		s.openLog() //nolint:errcheck // best-effort; next write retries
	}
}

func (s *stream) run() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		buf := make([]byte, ReadChunkSize)
		for {
			select {
			case <-s.done:
				s.drainRemaining()
				return
			default:
			}

			s.readEnd.SetReadDeadline(time.Now().Add(ReadTimeout)) //nolint:errcheck
			n, err := s.readEnd.Read(buf)
			if n > 0 {
				s.checkRotation()
				s.processChunk(buf[:n])
			}
			if err != nil {
				if isTimeout(err) {
					continue
				}
				if err == io.EOF {
					s.drainRemaining()
					return
				}
				// Any other read error (closed pipe on Stop): exit quietly.
				return
			}
		}
	}()
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}

func (s *stream) processChunk(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	combined := append(s.remainder, data...)
	lines := bytes.Split(combined, []byte("\n"))
	// The last element is an unterminated remainder (possibly empty).
	s.remainder = append([]byte{}, lines[len(lines)-1]...)
	for _, line := range lines[:len(lines)-1] {
		s.writeLine(line)
	}
}

func (s *stream) writeLine(line []byte) {
	if s.logFile == nil {
		return
	}
	filtered := s.filter(line)
	s.logFile.Write(filtered)  //nolint:errcheck
	s.logFile.Write([]byte{'\n'}) //nolint:errcheck
	s.logFile.Sync()           //nolint:errcheck
}

func (s *stream) drainRemaining() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.remainder) > 0 && s.logFile != nil {
		s.logFile.Write(s.filter(s.remainder)) //nolint:errcheck
		s.logFile.Write([]byte{'\n'})           //nolint:errcheck
		s.logFile.Sync()                        //nolint:errcheck
		s.remainder = nil
	}
}

func (s *stream) stop() {
	close(s.done)
	s.writeEnd.Close()
	s.wg.Wait()
	s.close()
}

func (s *stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readEnd.Close()
	if s.logFile != nil {
		s.logFile.Close()
	}
}
