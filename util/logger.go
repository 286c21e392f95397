package util

import (
	"fmt"
	"log"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"moul.io/zapfilter"
)

// GetStdLogger bridges a *log.Logger into parent at warn level, tagged with the subsystem.
// Lines starting with any of drop are discarded.
func GetStdLogger(parent *zap.Logger, sub string, drop ...string) *log.Logger {
	if len(drop) > 0 {
		parent = zap.New(zapfilter.NewFilteringCore(parent.Core(), func(e zapcore.Entry, _ []zapcore.Field) bool {
			for _, prefix := range drop {
				if strings.HasPrefix(e.Message, prefix) {
					return false
				}
			}
			return true
		}))
	}
	logger, err := zap.NewStdLogAt(parent.With(zap.String("subsystem", sub)), zapcore.WarnLevel)
	if err != nil {
		panic(fmt.Errorf("creating std logger for %s: %w", sub, err))
	}
	return logger
}
