package voice

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
)

// LineRecognizer treats text lines as transcripts, one utterance per line. A line starting with
// "~" is a partial result for the utterance that the next plain line finishes. It stands in for
// an on-device recognizer in the command line client and needs no authorization.
type LineRecognizer struct {
	r    io.Reader
	once sync.Once
	// lines is fed by a single reader goroutine so streams can be abandoned mid-read.
	lines chan string
}

// NewLineRecognizer reads transcripts from r.
func NewLineRecognizer(r io.Reader) *LineRecognizer {
	return &LineRecognizer{r: r, lines: make(chan string)}
}

// Authorize always grants access.
func (l *LineRecognizer) Authorize(context.Context) (bool, error) {
	return true, nil
}

// Start opens a stream covering the next utterance. Once the input is exhausted it returns
// ErrRecognizerClosed.
func (l *LineRecognizer) Start(ctx context.Context) (Stream, error) {
	l.once.Do(func() { go l.read() })

	var first string
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case line, ok := <-l.lines:
		if !ok {
			return nil, ErrRecognizerClosed
		}
		first = line
	}

	s := &lineStream{results: make(chan Transcript, 1), stop: make(chan struct{})}
	go s.run(first, l.lines)
	return s, nil
}

func (l *LineRecognizer) read() {
	defer close(l.lines)
	scanner := bufio.NewScanner(l.r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		l.lines <- line
	}
}

type lineStream struct {
	results chan Transcript
	stop    chan struct{}
	once    sync.Once
}

func (s *lineStream) Results() <-chan Transcript {
	return s.results
}

func (s *lineStream) Err() error {
	return nil
}

func (s *lineStream) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

func (s *lineStream) run(line string, lines <-chan string) {
	defer close(s.results)
	for {
		text, partial := strings.CutPrefix(line, "~")
		select {
		case s.results <- Transcript{Text: strings.TrimSpace(text), Final: !partial}:
		case <-s.stop:
			return
		}
		if !partial {
			return
		}

		var ok bool
		select {
		case line, ok = <-lines:
			if !ok {
				return
			}
		case <-s.stop:
			return
		}
	}
}
