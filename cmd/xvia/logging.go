package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"xviarchive/internal/config"
)

// setupLogging tees slog to stderr and a dated log file under logs/, plus a
// copy under the configured log path when one is set. Returns the log file
// name so the email report can attach it.
func setupLogging(settings *config.Settings) string {
	now := time.Now()
	name := filepath.Join("logs", now.Format("2006"), now.Format("01"),
		"XVI_ARCHIVE_"+now.Format("2006-01-02_15_04_05")+".log")

	writers := []io.Writer{os.Stderr}
	if f := openLogFile(name); f != nil {
		writers = append(writers, f)
	}
	if settings.LogPath != "" {
		if f := openLogFile(filepath.Join(settings.LogPath, name)); f != nil {
			writers = append(writers, f)
		}
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), nil)
	slog.SetDefault(slog.New(handler))
	return name
}

func openLogFile(path string) *os.File {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "could not create log directory:", err)
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "could not create log file:", err)
		return nil
	}
	return f
}
