// Package logging provides the daemon's single structured logger and the
// fork-safety guarantee spec.md §5 and §9 require: whatever locking exists
// around log output must be held across fork() and released in both parent
// and child immediately after, so a child never inherits a poisoned mutex
// held by some other thread at the moment of fork.
//
// Modeled on lxd-export/core/logger.SafeLogger (a mutex-guarded logrus.Logger)
// and the logrus setup in lxd-user/main_daemon.go.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu  sync.Mutex
	log = logrus.New()
)

func init() {
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.InfoLevel)
	log.SetOutput(os.Stderr)
}

// Configure sets the output and level for the process-wide logger. debug
// filters are matched against each entry's "category" field; an empty
// filter means "all categories".
func Configure(out io.Writer, debug bool, category string) {
	mu.Lock()
	defer mu.Unlock()

	log.SetOutput(out)

	if debug {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}

	categoryFilter = category
}

var categoryFilter string

// Lock acquires the log mutex. Callers performing a fork (internal/process)
// must call Lock before fork and Unlock in both the parent and the child
// immediately after, mirroring log_lock()/log_unlock() bracketing fork() in
// process.c's process_fork().
func Lock() { mu.Lock() }

// Unlock releases the log mutex acquired by Lock.
func Unlock() { mu.Unlock() }

func entry(category string) *logrus.Entry {
	e := log.WithField("category", category)
	return e
}

func allowed(category string) bool {
	return categoryFilter == "" || categoryFilter == category
}

// Debugf logs at debug level under the given category, e.g. "api", "process".
func Debugf(category, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()

	if !allowed(category) {
		return
	}

	entry(category).Debugf(format, args...)
}

// Infof logs at info level under the given category.
func Infof(category, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	entry(category).Infof(format, args...)
}

// Warnf logs at warn level under the given category.
func Warnf(category, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	entry(category).Warnf(format, args...)
}

// Errorf logs at error level under the given category.
func Errorf(category, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	entry(category).Errorf(format, args...)
}
