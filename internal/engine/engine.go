// Package engine wires the scanner, classifier and executor to the task
// runner and holds the authoritative classified directory set between a
// scan and the actions applied to it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"xviarchive/internal/action"
	"xviarchive/internal/audit"
	"xviarchive/internal/classify"
	"xviarchive/internal/config"
	"xviarchive/internal/domain"
	"xviarchive/internal/fsx"
	"xviarchive/internal/ois"
	"xviarchive/internal/scan"
	"xviarchive/internal/task"
)

// Error kinds reported for whole-job failures.
const (
	KindProviderUnavailable = "ProviderUnavailable"
)

// Engine owns one task runner and the last classified result set.
type Engine struct {
	Settings *config.Settings
	Provider ois.Provider
	FS       fsx.FS
	Runner   *task.Runner
	Audit    *audit.Log
	// Now is injected into the classifier and executor; defaults to time.Now.
	Now func() time.Time
	// DryRun rehearses actions without touching data.
	DryRun bool

	mu   sync.Mutex
	dirs []domain.Directory
}

// New assembles an engine over the real filesystem.
func New(settings *config.Settings, provider ois.Provider) *Engine {
	return &Engine{
		Settings: settings,
		Provider: provider,
		FS:       fsx.OS{},
		Runner:   task.NewRunner(),
		Audit:    audit.New(""),
	}
}

// Directories returns a copy of the last classified result set.
func (e *Engine) Directories() []domain.Directory {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Directory, len(e.dirs))
	copy(out, e.dirs)
	return out
}

func (e *Engine) setDirectories(dirs []domain.Directory) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dirs = dirs
}

// removeActioned drops the successfully actioned records from the
// authoritative set. The executor never mutates the set itself.
func (e *Engine) removeActioned(actioned []domain.Directory) {
	e.mu.Lock()
	defer e.mu.Unlock()
	gone := make(map[string]bool, len(actioned))
	for _, d := range actioned {
		gone[d.FullPath()] = true
	}
	kept := e.dirs[:0]
	for _, d := range e.dirs {
		if !gone[d.FullPath()] {
			kept = append(kept, d)
		}
	}
	e.dirs = kept
}

// StartScan launches scanning plus classification as one background task.
// The task's result payload is the classified []domain.Directory, or nil
// when the scan was cancelled. Fails with task.ErrBusy while another task
// is running.
func (e *Engine) StartScan(ctx context.Context, quick bool) (*task.Handle, error) {
	scanner := scan.Scanner{
		FS:         e.FS,
		Roots:      e.Settings.XVIPaths,
		IgnoreMRNs: e.Settings.IgnoreMRNs,
	}
	classifier := classify.Classifier{
		Provider:  e.Provider,
		Now:       e.Now,
		GraceDays: e.Settings.GraceDays,
	}
	return e.Runner.Start("scan", func(tc *task.Context) (any, error) {
		tc.Progress("Scanning locations")
		dirs := scanner.Scan(tc, quick)
		if tc.Cancelled() {
			return nil, nil
		}
		tc.Progress("Fetching patient info")
		if err := classifier.Classify(ctx, tc, dirs); err != nil {
			if errors.Is(err, ois.ErrUnavailable) {
				return nil, &task.Error{Kind: KindProviderUnavailable, Err: err}
			}
			return nil, err
		}
		if tc.Cancelled() {
			return nil, nil
		}
		e.setDirectories(dirs)
		return dirs, nil
	})
}

// CheckActionPreconditions verifies it is safe to run an action: the XVI
// application must not be running, and for archive the destination must be
// reachable. The executor assumes these hold.
func (e *Engine) CheckActionPreconditions(act domain.Action) error {
	if name := e.Settings.XVIProcess; name != "" && processRunning(name) {
		return fmt.Errorf("the XVI application (%s) is running; close it before performing actions", name)
	}
	if act == domain.ActionArchive {
		if e.Settings.ArchivePath == "" {
			return errors.New("no archive path configured")
		}
		if _, err := e.FS.ListSubdirs(e.Settings.ArchivePath); err != nil {
			return fmt.Errorf("archive path unreachable: %w", err)
		}
	}
	return nil
}

// StartAction launches the executor against dirs for the requested action.
// The task's result payload is the successfully actioned []domain.Directory;
// those records are also removed from the engine's authoritative set.
func (e *Engine) StartAction(dirs []domain.Directory, act domain.Action) (*task.Handle, error) {
	if act != domain.ActionArchive && act != domain.ActionDelete {
		return nil, fmt.Errorf("action %q cannot be executed", act)
	}
	exec := action.Executor{
		FS:            e.FS,
		Audit:         e.Audit,
		ArchivePath:   e.Settings.ArchivePath,
		XVIPaths:      e.Settings.XVIPaths,
		RetentionDays: e.Settings.BackupRetentionDays,
		Now:           e.Now,
		DryRun:        e.DryRun,
	}
	return e.Runner.Start(string(act), func(tc *task.Context) (any, error) {
		actioned, _ := exec.Execute(tc, dirs, act)
		e.removeActioned(actioned)
		return actioned, nil
	})
}
