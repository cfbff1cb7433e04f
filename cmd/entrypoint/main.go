package main

import (
	"os"

	"github.com/wrouesnel/sheets-replicator/pkg/dispatch"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// main is deliberately free of any argument parsing: the dispatcher must pass
// arbitrary commands through untouched.
func main() {
	logConfig := zap.NewProductionConfig()
	logConfig.Encoding = "console"
	logConfig.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	logConfig.OutputPaths = []string{"stderr"}

	logger := lo.Must(logConfig.Build())
	zap.ReplaceGlobals(logger)

	dispatcher := lo.Must(dispatch.NewDispatcher(dispatch.DispatcherInitializationConfig{
		Logger: logger,
	}))

	os.Exit(dispatcher.Dispatch(os.Args[1:], os.Environ()))
}
