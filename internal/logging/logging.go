// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logging constructs the shared structured logger.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// New returns a configured logger writing to w. Unknown level strings
// fall back to warn so a typo never silences errors.
func New(w io.Writer, level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.WarnLevel
	}
	log.SetLevel(lvl)
	return log
}

// Discard returns a logger that drops everything. Tests use it where
// log output is irrelevant.
func Discard() *logrus.Logger {
	return New(io.Discard, "panic")
}
