// Package scheduler drives the process-wide lifecycle: source
// discovery, the Init → Run → Shut runlevel transitions, SIGINT
// handling, and the live-task quiescence poll that decides when the
// process may exit (spec.md §4.5).
//
// Grounded on _examples/original_source/src/main.rs (the runlevel
// sequencing and signal handling this module generalizes out of a
// single main function) and on the teacher's own signal-handling idiom
// in cmd/pipeline/main.go (bare os/signal.Notify, not a supervisor
// library — no pack example reaches for one to catch SIGINT).
package scheduler

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ylxdzsw/sopipe/internal/actorsys"
	"github.com/ylxdzsw/sopipe/internal/component"
)

// InitToRunDelay is the fixed quiescence delay between entering Init and
// moving to Run (spec.md §4.5, §9b). A readiness-handshake where sources
// report readiness instead of sleeping would be preferable but is not
// implemented — same open question the original left as a TODO.
const InitToRunDelay = 200 * time.Millisecond

// PollInterval is how often the shutdown loop checks whether every
// node's live-task counter has returned to zero.
const PollInterval = 20 * time.Millisecond

// Run executes the full lifecycle: after spawning the sources and moving
// to Run, it returns as soon as every node's task counter is zero
// (whether or not the runlevel has reached Shut) or ctx is cancelled.
func Run(ctx context.Context, cancel context.CancelFunc, sys *actorsys.System) error {
	sys.SetRunLevel(component.RunLevelInit)

	for _, idx := range sys.Graph.SourceIndices() {
		node := sys.Graph.Nodes[idx]
		if !node.Symmetric() {
			return fmt.Errorf("scheduler: source node %q must be symmetric (forward == backward)", node.Name)
		}
		sys.SpawnSource(node)
	}

	time.Sleep(InitToRunDelay)
	sys.SetRunLevel(component.RunLevelRun)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	go handleSignals(sigCh, cancel, sys)

	for !sys.TaskCountsZero() {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(PollInterval):
		}
	}

	return nil
}

func handleSignals(sigCh <-chan os.Signal, cancel context.CancelFunc, sys *actorsys.System) {
	<-sigCh
	sys.SetRunLevel(component.RunLevelShut)
	fmt.Fprintln(os.Stderr, "SIGINT received. Stopping accepting new connections.\n"+
		"Waiting for exiting tasks. Press Ctrl+C again to force exit.")

	<-sigCh
	fmt.Fprintln(os.Stderr, "SIGINT received again. Aborting.")
	cancel()
	os.Exit(1)
}
