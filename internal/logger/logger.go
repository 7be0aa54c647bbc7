// Package logger wires the process-wide structured logger, matching
// one-api's common/logger package: a package-level Logger built once over
// Laisky/go-utils' glog console sink, gated to debug level by config.
package logger

import (
	"fmt"
	"sync"

	glog "github.com/Laisky/go-utils/v5/log"

	"github.com/1-api-gateway/relaygw/internal/config"
)

// Logger is the process-wide structured logger. Derive request-scoped
// loggers with Logger.With(...) / Logger.Named(...).
var Logger glog.Logger

var initOnce sync.Once

func init() {
	initOnce.Do(func() {
		level := glog.LevelInfo
		if config.DebugEnabled {
			level = glog.LevelDebug
		}

		var err error
		Logger, err = glog.NewConsoleWithName("relaygw", level)
		if err != nil {
			panic(fmt.Sprintf("failed to create logger: %+v", err))
		}
	})
}
