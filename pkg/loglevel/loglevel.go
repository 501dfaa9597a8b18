// Package loglevel drives the process log level from the logLevel and
// showDebugFooter flags.
package loglevel

import (
	log "github.com/sirupsen/logrus"

	"github.com/squidstack/squidflags/pkg/model"
	"github.com/squidstack/squidflags/pkg/registry"
)

// Parse maps a logLevel flag value to a logrus level. "off" silences
// everything short of a panic.
func Parse(value string) (log.Level, bool) {
	switch value {
	case "off":
		return log.PanicLevel, true
	case "error":
		return log.ErrorLevel, true
	case "warn":
		return log.WarnLevel, true
	case "info":
		return log.InfoLevel, true
	case "debug":
		return log.DebugLevel, true
	}
	return log.InfoLevel, false
}

// FromSnapshot derives the level a snapshot asks for. showDebugFooter forces
// debug. ok is false when the snapshot names no valid level.
func FromSnapshot(snap model.Snapshot) (lvl log.Level, ok bool) {
	if snap.Bool(registry.ShowDebugFooter) {
		return log.DebugLevel, true
	}
	return Parse(snap.String(registry.LogLevel))
}

// Follower applies flag-driven levels to a logger. The level the logger had
// when the Follower was built is the baseline: it is restored when the flags
// name no valid level, and a debug or trace baseline is never lowered.
type Follower struct {
	logger   *log.Logger
	baseline log.Level
}

func NewFollower(logger *log.Logger) *Follower {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Follower{logger: logger, baseline: logger.GetLevel()}
}

// Apply is a snapshot subscriber.
func (f *Follower) Apply(reason string, snap model.Snapshot) {
	lvl, ok := FromSnapshot(snap)
	if !ok || f.baseline >= log.DebugLevel {
		lvl = f.baseline
	}
	if f.logger.GetLevel() == lvl {
		return
	}
	// log before the change so a level going quiet still leaves a trace
	f.logger.WithFields(log.Fields{"level": lvl.String(), "reason": reason}).Info("log level changed by flags")
	f.logger.SetLevel(lvl)
}
