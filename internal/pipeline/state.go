// internal/pipeline/state.go
package pipeline

// State names one phase of a pipeline run. Runs move strictly forward; a
// stage failure skips dependents but the run always reaches StateDone.
type State string

const (
	StateInit         State = "init"
	StateQuerying     State = "querying"
	StateSearching    State = "searching"
	StateExtracting   State = "extracting"
	StateSynthesizing State = "synthesizing"
	StateQualityCheck State = "quality_check"
	StateFinalizing   State = "finalizing"
	StateDone         State = "done"
)

// stageOrder is the fixed execution sequence. Stage names double as
// checkpoint keys and task types.
var stageOrder = []string{
	"generate-queries",
	"search-fanout",
	"extract-content",
	"synthesize-insights",
	"quality-gate",
}

var stageStates = map[string]State{
	"generate-queries":    StateQuerying,
	"search-fanout":       StateSearching,
	"extract-content":     StateExtracting,
	"synthesize-insights": StateSynthesizing,
	"quality-gate":        StateQualityCheck,
}

func stateFor(stage string) State {
	if s, ok := stageStates[stage]; ok {
		return s
	}
	return StateInit
}
