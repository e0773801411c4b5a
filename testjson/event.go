// Package testjson turns a go test -json stream into test completions.
package testjson

import "time"

// Actions emitted by test2json that the consumer reacts to.
const (
	ActionRun    = "run"
	ActionPass   = "pass"
	ActionFail   = "fail"
	ActionSkip   = "skip"
	ActionOutput = "output"
)

// Event is a single line of go test -json output.
type Event struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"`
	Package string    `json:"Package"`
	Test    string    `json:"Test"`
	Elapsed float64   `json:"Elapsed"`
	Output  string    `json:"Output"`
}

func (e Event) elapsed() time.Duration {
	if e.Elapsed <= 0 {
		return 0
	}
	return time.Duration(e.Elapsed * float64(time.Second))
}
