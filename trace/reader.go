package trace

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/velasec/traceverdict"
)

// Reader loads a finite trace file into normalized events for batch
// evaluation. Malformed lines are skipped with a warning and counted, they
// never reach the engine.
type Reader struct {
	log *logrus.Logger

	// Skipped counts malformed lines from the last ReadFile call
	Skipped int
}

// NewReader creates a batch trace reader,
// logrus standard logger when logger is nil
func NewReader(logger *logrus.Logger) *Reader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Reader{log: logger}
}

// ReadFile decodes every line of a JSONL trace, gzip transparent
func (r *Reader) ReadFile(path string) ([]traceverdict.Event, error) {
	input, err := open(path)
	if err != nil {
		return nil, err
	}
	defer input.Close()
	return r.Read(input, path)
}

// Read decodes a JSONL stream until EOF
func (r *Reader) Read(input io.Reader, source string) ([]traceverdict.Event, error) {
	r.Skipped = 0
	events := make([]traceverdict.Event, 0)
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var lineNum int
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		event, err := decodeLine(line)
		if err != nil {
			r.Skipped++
			r.log.WithFields(logrus.Fields{
				"source": source,
				"line":   lineNum,
			}).Warnf("skipping malformed trace line: %s", err)
			continue
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return events, err
	}
	return events, nil
}

func open(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, "gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, err
		}
		return gz, nil
	}
	return file, nil
}
