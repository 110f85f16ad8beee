package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fsnotify/fsnotify"
)

// WatchCmd reconciles once, then watches the input directory and reconciles
// again whenever a new export lands. Runs stay strictly sequential: events
// arriving while a run is interactive are coalesced into one follow-up run.
type WatchCmd struct {
	RunCmd `embed:""`
}

func (cmd *WatchCmd) Run(kctx *kong.Context, globals *Globals) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(cmd.Input); err != nil {
		return fmt.Errorf("failed to watch %s: %w", cmd.Input, err)
	}

	ctx := context.Background()

	// Exports are often written in multiple steps; wait for the writes to
	// settle before reconciling.
	const debounceDelay = 500 * time.Millisecond

	trigger := make(chan struct{}, 1)
	go watchLoop(ctx, watcher, debounceDelay, trigger)

	for {
		if err := cmd.RunCmd.Run(kctx, globals); err != nil {
			return err
		}

		printInfof(kctx.Stdout, "watching %s for new exports (ctrl-c to stop)", pathStyle.Render(cmd.Input))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-trigger:
		}
	}
}

// watchLoop debounces filesystem events into run triggers. Only CSV files
// count; editors and browsers drop temporary files alongside downloads.
func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, delay time.Duration, trigger chan<- struct{}) {
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".csv") {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(delay, func() {
				select {
				case trigger <- struct{}{}:
				default:
					// A run is already pending.
				}
			})

		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}
