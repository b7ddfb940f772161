// Package sentinel parses the textual markers an agent writes into its pane
// (spec.md §4.2): completion promises, structured progress markers, and
// provider-specific confirmation/idle prompts. Parsing is deliberately
// shallow — the daemon never interprets free-form agent output beyond these
// well-defined shapes (spec.md §1 Non-goals).
package sentinel

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// donePattern matches both "<promise>...DONE</promise>" and the shorthand
// "<promise>Done</promise>" (spec.md §4.2, case-insensitive on the inner
// DONE/Done spelling).
var donePattern = regexp.MustCompile(`(?is)<promise>.*?\b(done)\b.*?</promise>`)

// progressPattern extracts the JSON payload of a <task-progress> marker.
var progressPattern = regexp.MustCompile(`(?is)<task-progress>(.*?)</task-progress>`)

// HasCompletionSentinel reports whether text contains a completion promise.
func HasCompletionSentinel(text string) bool {
	return donePattern.MatchString(text)
}

// ParseProgress extracts the most recent <task-progress> marker in text, if
// any. A malformed JSON body is ignored (returns ok=false) rather than
// treated as an error — a partial agent write mid-capture is expected.
func ParseProgress(text string) (progress model.Progress, ok bool) {
	matches := progressPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return model.Progress{}, false
	}
	last := matches[len(matches)-1][1]
	var p model.Progress
	if err := json.Unmarshal([]byte(strings.TrimSpace(last)), &p); err != nil {
		return model.Progress{}, false
	}
	return p, true
}

// MatchesAny reports whether text contains any of the given prompt
// fragments, trailing-window only (the last window bytes of text), which is
// how the supervisor checks for confirm/idle prompts without re-scanning an
// entire large capture on every tick.
func MatchesAny(text string, fragments []string, window int) bool {
	tail := text
	if window > 0 && len(tail) > window {
		tail = tail[len(tail)-window:]
	}
	for _, f := range fragments {
		if f == "" {
			continue
		}
		if strings.Contains(tail, f) {
			return true
		}
	}
	return false
}
