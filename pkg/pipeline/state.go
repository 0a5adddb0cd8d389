package pipeline

import (
	"context"

	"github.com/vulnscope/vulnscope/pkg/types"
	"github.com/vulnscope/vulnscope/pkg/workspace"
)

type State int

const (
	StateIdle State = iota
	StateResolvingDependencies
	StateScanningOccurrences
	StateAnalyzingWithAI
	StateRunningStaticDetector
	StateReporting
	StateDone
)

var stateNames = []string{
	"idle",
	"resolving-dependencies",
	"scanning-occurrences",
	"analyzing-with-ai",
	"running-static-detector",
	"reporting",
	"done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Workspace is the file access the pipeline needs from its host.
type Workspace interface {
	FindFiles(ctx context.Context, filter workspace.Filter) ([]string, error)
	ReadFile(ctx context.Context, ref string) (string, error)
}

// Notifier receives progress from a run. Calls come from the coordinating
// goroutine only.
type Notifier interface {
	Stage(state State, message string)
	Step(state State, done, total int)
	Summary(report types.ScanReport, tally types.Tally)
}

// NopNotifier discards every notification.
type NopNotifier struct{}

func (NopNotifier) Stage(State, string)                  {}
func (NopNotifier) Step(State, int, int)                 {}
func (NopNotifier) Summary(types.ScanReport, types.Tally) {}
