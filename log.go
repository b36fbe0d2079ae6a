package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

func setupLog() (func() error, error) {
	log.SetOutput(io.Discard)
	// Log to file, if set
	if logFile := os.Getenv("APERTURE_LOGFILE"); logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec
		if err != nil {
			return nil, fmt.Errorf("error setting up log file: %w", err)
		}
		log.SetOutput(f)
		log.SetReportTimestamp(true)
		log.SetTimeFormat(time.Kitchen)
		if viper.GetBool("debug") {
			log.SetLevel(log.DebugLevel)
		}
		return f.Close, nil
	}
	return func() error { return nil }, nil
}
