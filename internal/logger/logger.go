package logger

import (
	"servicesim/internal/models"

	"github.com/SOLUCIONESSYCOM/scribe"
	"github.com/google/uuid"
)

// New builds the process logger from the given settings.
func New(settings models.LogSettings) (*scribe.Scribe, error) {
	loggerConfig := &scribe.ConfigLogger{
		FilePath:          settings.Path,               // FilePath where the log file is written
		MinLevel:          settings.MinLevel,           // trace, debug, info, warn, error, fatal
		RotationMaxSizeMB: settings.RotationMaxSizeMB,  // size before rotating
		MaxBackups:        settings.MaxBackups,         // rotated files kept
		MaxAgeDay:         settings.MaxAgeDay,          // days a rotated file is kept
		Compress:          settings.Compress,           // gzip rotated files
		Console:           settings.Console,            // write to stdout
		BeutifyConsoleLog: settings.BeautifyConsoleLog, // human readable console output (false = JSON)
		File:              settings.File,               // write to FilePath
	}

	globals := map[string]interface{}{
		"service_name":    settings.Name,
		"service_version": settings.Version,
		"service_id":      uuid.New().String(),
	}

	globalContext := scribe.NewGlobalLogContext(globals, []string{"service_name", "service_version", "service_id"})

	return scribe.New(loggerConfig, globalContext, []string{"service_name", "service_version", "service_id", "timestamp"})
}

// Quiet returns a logger that only reports errors to the console. Tests and
// tools that do not care about log output use it.
func Quiet() *scribe.Scribe {
	log, err := New(models.LogSettings{
		Name:     "servicesim",
		Version:  "test",
		MinLevel: "error",
		Console:  true,
	})
	if err != nil {
		return &scribe.Scribe{}
	}
	return log
}
