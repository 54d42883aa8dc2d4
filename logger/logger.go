package logger

import (
	"go.uber.org/zap"
)

var Log *zap.SugaredLogger

func Init() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize zap logger: " + err.Error())
	}
	Log = logger.Sugar()
}

// InitSilent installs a no-op logger. Tests use this so game output
// stays readable.
func InitSilent() {
	Log = zap.NewNop().Sugar()
}
