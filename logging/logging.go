// Package logging defines the small leveled-logger interface used across
// the hub. Components take the interface rather than a concrete logger,
// so tests can discard output and embedders can redirect it.
package logging

import (
	"log"
	"os"
)

// Logger is implemented by anything that can record the hub's four log
// levels. The bus engine, reaction engine and programmer never log below
// Debug and never panic; everything funnels through here.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Criticalf(format string, args ...interface{})
}

// Std wraps the standard library's *log.Logger. It is the default used by
// cmd/hub when no other Logger is supplied.
type Std struct {
	*log.Logger
}

// New returns a Logger that writes to stderr with a microsecond timestamp.
func New() *Std {
	return &Std{Logger: log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)}
}

func (s *Std) Debugf(format string, args ...interface{})    { s.Printf("DEBUG "+format, args...) }
func (s *Std) Infof(format string, args ...interface{})     { s.Printf("INFO  "+format, args...) }
func (s *Std) Errorf(format string, args ...interface{})    { s.Printf("ERROR "+format, args...) }
func (s *Std) Criticalf(format string, args ...interface{}) { s.Printf("CRIT  "+format, args...) }

// Discard ignores every line; used in tests that don't care about log
// output but still need a non-nil Logger.
type Discard struct{}

func (Discard) Debugf(string, ...interface{})    {}
func (Discard) Infof(string, ...interface{})     {}
func (Discard) Errorf(string, ...interface{})    {}
func (Discard) Criticalf(string, ...interface{}) {}
