// internal/codesource/codesource.go
package codesource

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"

	"github.com/xkilldash9x/regflow/internal/config"
)

// Source delivers verification codes obtained outside the page. Readers run in their own
// goroutines and only hand codes over through Poll.
type Source interface {
	// Poll returns the most recent unclaimed code without blocking.
	Poll() (string, bool)
	Close() error
}

var digitRuns = regexp.MustCompile(`\d+`)

// ExtractCode returns the last run of exactly n digits in line. Longer runs such as phone
// numbers or timestamps are ignored.
func ExtractCode(line string, n int) (string, bool) {
	runs := digitRuns.FindAllString(line, -1)
	for i := len(runs) - 1; i >= 0; i-- {
		if len(runs[i]) == n {
			return runs[i], true
		}
	}
	return "", false
}

// New builds the source selected by cfg. in and out are used by the stdin source.
func New(cfg config.CodeSourceConfig, codeLength int, in io.Reader, out io.Writer, logger *zap.Logger) (Source, error) {
	logger = logger.Named("codesource")
	switch cfg.Type {
	case "", config.CodeSourceNone:
		return Nop{}, nil
	case config.CodeSourceStdin:
		return NewReaderSource(in, out, codeLength, logger), nil
	case config.CodeSourceFile:
		return NewFileSource(cfg.File, codeLength, logger)
	default:
		return nil, fmt.Errorf("unknown code source type %q", cfg.Type)
	}
}

// Nop never produces a code; the operator types it into the page directly.
type Nop struct{}

func (Nop) Poll() (string, bool) { return "", false }
func (Nop) Close() error { return nil }

// mailbox holds at most one pending code. A newer code replaces an unclaimed older one.
type mailbox struct {
	ch chan string
}

func newMailbox() mailbox { return mailbox{ch: make(chan string, 1)} }

func (m mailbox) offer(code string) {
	for {
		select {
		case m.ch <- code:
			return
		default:
		}
		select {
		case <-m.ch:
		default:
		}
	}
}

func (m mailbox) Poll() (string, bool) {
	select {
	case code := <-m.ch:
		return code, true
	default:
		return "", false
	}
}

// ReaderSource reads codes line by line, typically from a terminal.
type ReaderSource struct {
	mailbox
	in        io.Reader
	closeOnce sync.Once
	done      chan struct{}
}

// NewReaderSource prompts on out and starts reading in. Lines that are not a valid code
// are ignored with a hint.
func NewReaderSource(in io.Reader, out io.Writer, codeLength int, logger *zap.Logger) *ReaderSource {
	s := &ReaderSource{mailbox: newMailbox(), in: in, done: make(chan struct{})}

	fmt.Fprintf(out, "Enter the %d-digit verification code when it arrives: ", codeLength)
	go func() {
		defer close(s.done)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if code, ok := ExtractCode(line, codeLength); ok && code == line {
				logger.Info("Received verification code from terminal")
				s.offer(code)
				continue
			}
			if line != "" {
				fmt.Fprintf(out, "%q is not a %d-digit code, try again: ", line, codeLength)
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Warn("Stopped reading verification codes", zap.Error(err))
		}
	}()
	return s
}

// Close closes the underlying reader when it can be closed. It does not wait for the
// reading goroutine: a read blocked on a terminal may not return until the next line.
func (s *ReaderSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if c, ok := s.in.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}

// Done is closed once the reading goroutine has exited.
func (s *ReaderSource) Done() <-chan struct{} { return s.done }

// FileSource follows a file, such as the log of an SMS forwarder, and extracts a code
// from every new line.
type FileSource struct {
	mailbox
	t         *tail.Tail
	closeOnce sync.Once
	done      chan struct{}
}

// NewFileSource starts following path from its current end. The file does not have to
// exist yet.
func NewFileSource(path string, codeLength int, logger *zap.Logger) (*FileSource, error) {
	t, err := tail.TailFile(path, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Poll:     true,
		Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to follow code file: %w", err)
	}

	s := &FileSource{mailbox: newMailbox(), t: t, done: make(chan struct{})}
	logger.Info("Watching file for verification codes", zap.String("path", path))

	go func() {
		defer close(s.done)
		for line := range t.Lines {
			if line.Err != nil {
				logger.Warn("Error reading code file", zap.Error(line.Err))
				continue
			}
			if code, ok := ExtractCode(line.Text, codeLength); ok {
				logger.Info("Received verification code from file")
				s.offer(code)
			}
		}
	}()
	return s, nil
}

// Close stops following the file and waits for the reader goroutine to exit.
func (s *FileSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.t.Stop()
		s.t.Cleanup()
		<-s.done
	})
	return err
}
