package sentinel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/sentinel"
)

func TestHasCompletionSentinelVariants(t *testing.T) {
	assert.True(t, sentinel.HasCompletionSentinel("work complete\n<promise>Done</promise>\n"))
	assert.True(t, sentinel.HasCompletionSentinel("<promise>Implemented the feature. DONE</promise>"))
	assert.False(t, sentinel.HasCompletionSentinel("<promise>still working</promise>"))
	assert.False(t, sentinel.HasCompletionSentinel("no sentinel here"))
}

func TestParseProgressTakesLastMarker(t *testing.T) {
	text := `<task-progress>{"phase":"plan","status":"ok"}</task-progress>
some output
<task-progress>{"phase":"implement","status":"ok","files":["a.go"]}</task-progress>`

	p, ok := sentinel.ParseProgress(text)
	require.True(t, ok)
	assert.Equal(t, "implement", p.Phase)
	assert.Equal(t, []string{"a.go"}, p.Files)
}

func TestParseProgressMalformedIsNotOK(t *testing.T) {
	_, ok := sentinel.ParseProgress(`<task-progress>{not json</task-progress>`)
	assert.False(t, ok)
}

func TestMatchesAnyRespectsWindow(t *testing.T) {
	text := "Continue? [y/n]" + string(make([]byte, 1000))
	assert.True(t, sentinel.MatchesAny(text, []string{"Continue? [y/n]"}, 2000))
	assert.False(t, sentinel.MatchesAny(text, []string{"Continue? [y/n]"}, 10))
}
