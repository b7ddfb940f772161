package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// withToggle returns a copy of toggles with key set to v, exercising the
// same five fields Toggles exposes publicly (AutoStart, AutoPilot,
// AutoClose, UseWorktree, UseMemory) one at a time.
func withToggle(key model.ToggleKey, v *bool) model.Toggles {
	var out model.Toggles
	switch key {
	case model.ToggleAutoStart:
		out.AutoStart = v
	case model.ToggleAutoPilot:
		out.AutoPilot = v
	case model.ToggleAutoClose:
		out.AutoClose = v
	case model.ToggleUseWorktree:
		out.UseWorktree = v
	case model.ToggleUseMemory:
		out.UseMemory = v
	}
	return out
}

func TestEffectiveTaskOverrideWins(t *testing.T) {
	for _, key := range model.AllToggleKeys {
		task := withToggle(key, model.BoolPtr(true))
		lane := withToggle(key, model.BoolPtr(false))
		assert.True(t, model.Effective(task, lane, key), "key %s", key)
	}
}

func TestEffectiveFallsBackToLaneDefault(t *testing.T) {
	for _, key := range model.AllToggleKeys {
		lane := withToggle(key, model.BoolPtr(true))
		assert.True(t, model.Effective(model.Toggles{}, lane, key), "key %s", key)
	}
}

func TestEffectiveDefaultsFalseWhenBothInherit(t *testing.T) {
	for _, key := range model.AllToggleKeys {
		assert.False(t, model.Effective(model.Toggles{}, model.Toggles{}, key), "key %s", key)
	}
}

func TestEffectiveAllCoversEveryKey(t *testing.T) {
	lane := model.Toggles{AutoPilot: model.BoolPtr(true)}
	out := model.EffectiveAll(model.Toggles{}, lane)
	assert.Len(t, out, len(model.AllToggleKeys))
	assert.True(t, out[model.ToggleAutoPilot])
	assert.False(t, out[model.ToggleAutoStart])
}

// TestStampInheritedLaneTrueIsStamped covers spec.md §4.3's "inherit values
// that the lane sets to true are stamped onto the task so they persist
// independent of later lane edits."
func TestStampInheritedLaneTrueIsStamped(t *testing.T) {
	for _, key := range model.AllToggleKeys {
		lane := withToggle(key, model.BoolPtr(true))

		stamped := model.StampInherited(model.Toggles{}, lane)
		got := model.EffectiveAll(stamped, model.Toggles{}) // lane reverted to zero value
		assert.True(t, got[key], "key %s should have been stamped true", key)
	}
}

// TestStampInheritedLaneFalseStaysInherit covers the asymmetry
// StampInherited's doc comment calls out: a lane default of false (or
// absent) leaves the task toggle as inherit, so a later lane edit to true
// retroactively applies through Effective — proving the toggle was never
// stamped to an explicit false.
func TestStampInheritedLaneFalseStaysInherit(t *testing.T) {
	for _, key := range model.AllToggleKeys {
		laneFalse := withToggle(key, model.BoolPtr(false))
		stamped := model.StampInherited(model.Toggles{}, laneFalse)

		laneNowTrue := withToggle(key, model.BoolPtr(true))
		assert.True(t, model.Effective(stamped, laneNowTrue, key),
			"key %s: inherit task toggle should track a later lane edit", key)
	}

	for _, key := range model.AllToggleKeys {
		stamped := model.StampInherited(model.Toggles{}, model.Toggles{}) // lane absent entirely

		laneNowTrue := withToggle(key, model.BoolPtr(true))
		assert.True(t, model.Effective(stamped, laneNowTrue, key),
			"key %s: inherit task toggle should track a later lane edit", key)
	}
}

// TestStampInheritedTaskOverrideUntouched covers the round-trip law from
// spec.md §8: an already-explicit task override is never overwritten by
// StampInherited, regardless of the lane default.
func TestStampInheritedTaskOverrideUntouched(t *testing.T) {
	for _, key := range model.AllToggleKeys {
		task := withToggle(key, model.BoolPtr(false))
		lane := withToggle(key, model.BoolPtr(true))

		stamped := model.StampInherited(task, lane)
		assert.False(t, model.Effective(stamped, model.Toggles{}, key), "key %s", key)
	}
}
