package trace

import (
	"bufio"
	"context"
	"io"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/velasec/traceverdict"
)

// DefaultPollInterval is the fallback wait between read attempts when
// filesystem notifications are unavailable or quiet
const DefaultPollInterval = 100 * time.Millisecond

// Follower tails a growing JSONL trace file for streaming evaluation. The
// file not existing yet, transient read stalls and a partial last line are
// all handled by waiting and retrying rather than failing the session.
type Follower struct {
	path string
	poll time.Duration
	log  *logrus.Logger
}

// NewFollower creates a follower for one trace file
func NewFollower(path string, poll time.Duration, logger *logrus.Logger) *Follower {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Follower{path: path, poll: poll, log: logger}
}

// Run starts tailing in a goroutine and returns the event channel. The
// channel is closed when the context is cancelled or the file becomes
// unreadable. Reading starts at the beginning of the file so a late-attached
// monitor still scores the whole session.
func (f *Follower) Run(ctx context.Context) <-chan traceverdict.Event {
	tx := make(chan traceverdict.Event, 1)
	go f.follow(ctx, tx)
	return tx
}

func (f *Follower) follow(ctx context.Context, tx chan<- traceverdict.Event) {
	defer close(tx)

	if !f.waitForFile(ctx) {
		return
	}
	file, err := os.Open(f.path)
	if err != nil {
		f.log.WithField("path", f.path).Errorf("cannot open trace: %s", err)
		return
	}
	defer file.Close()

	// fsnotify wakes the reader on writes, the poll ticker covers
	// filesystems without notification support
	var wake <-chan fsnotify.Event
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		if err := watcher.Add(f.path); err == nil {
			defer watcher.Close()
			wake = watcher.Events
		} else {
			watcher.Close()
		}
	}

	reader := bufio.NewReader(file)
	var partial []byte
	var lineNum int
	for {
		chunk, err := reader.ReadBytes('\n')
		switch {
		case err == nil:
			lineNum++
			line := append(partial, chunk...)
			partial = nil
			f.emit(ctx, tx, line[:len(line)-1], lineNum)
		case err == io.EOF:
			// no newline yet, stash the partial line and wait for
			// the writer to finish it
			partial = append(partial, chunk...)
			select {
			case <-ctx.Done():
				return
			case <-wake:
			case <-time.After(f.poll):
			}
		default:
			f.log.WithField("path", f.path).Errorf("trace read failed: %s", err)
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (f *Follower) emit(ctx context.Context, tx chan<- traceverdict.Event, line []byte, lineNum int) {
	if len(line) == 0 {
		return
	}
	event, err := decodeLine(line)
	if err != nil {
		f.log.WithFields(logrus.Fields{
			"path": f.path,
			"line": lineNum,
		}).Warnf("skipping malformed trace line: %s", err)
		return
	}
	select {
	case tx <- event:
	case <-ctx.Done():
	}
}

// waitForFile blocks until the trace file exists or the context ends
func (f *Follower) waitForFile(ctx context.Context) bool {
	for {
		if _, err := os.Stat(f.path); err == nil {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(f.poll):
		}
	}
}
