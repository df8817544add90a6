// Package logging hands out component loggers that share one sink: stderr, or a rotating file.
// stdout is never used; it carries the protocol.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	// File, when set, receives the logs through a rotating writer instead of stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Debug enables Debug loggers; otherwise they discard.
	Debug bool
}

type Logging struct {
	out   io.Writer
	file  *lumberjack.Logger
	debug bool
}

// New builds the sink. stderr is used when opts.File is empty; nil means os.Stderr.
func New(opts Options, stderr io.Writer) *Logging {
	if stderr == nil {
		stderr = os.Stderr
	}
	l := &Logging{out: stderr, debug: opts.Debug}
	if opts.File != "" {
		l.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		l.out = l.file
	}
	return l
}

// For returns a logger prefixed with "[component] ".
func (l *Logging) For(component string) *log.Logger {
	return log.New(l.out, "["+component+"] ", log.LstdFlags|log.Lmsgprefix)
}

// Debug is For when debugging is on, a discarding logger otherwise.
func (l *Logging) Debug(component string) *log.Logger {
	if !l.debug {
		return log.New(io.Discard, "", 0)
	}
	return l.For(component)
}

func (l *Logging) Debugging() bool { return l.debug }

func (l *Logging) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
