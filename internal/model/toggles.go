package model

// Toggles is the tri-state {true, false, inherit} bundle from spec.md §3 and
// §9: "Task-level toggles need a tri-state... absent = inherit." A nil field
// means inherit; a non-nil field is an explicit true/false that, once
// stamped, survives independent of later lane edits.
type Toggles struct {
	AutoStart   *bool `json:"autoStart,omitempty"`
	AutoPilot   *bool `json:"autoPilot,omitempty"`
	AutoClose   *bool `json:"autoClose,omitempty"`
	UseWorktree *bool `json:"useWorktree,omitempty"`
	UseMemory   *bool `json:"useMemory,omitempty"`
}

// ToggleKey names one of the five inheritable toggles.
type ToggleKey string

const (
	ToggleAutoStart   ToggleKey = "autoStart"
	ToggleAutoPilot   ToggleKey = "autoPilot"
	ToggleAutoClose   ToggleKey = "autoClose"
	ToggleUseWorktree ToggleKey = "useWorktree"
	ToggleUseMemory   ToggleKey = "useMemory"
)

// AllToggleKeys lists every toggle key, in a stable order.
var AllToggleKeys = []ToggleKey{ToggleAutoStart, ToggleAutoPilot, ToggleAutoClose, ToggleUseWorktree, ToggleUseMemory}

func (t Toggles) get(key ToggleKey) *bool {
	switch key {
	case ToggleAutoStart:
		return t.AutoStart
	case ToggleAutoPilot:
		return t.AutoPilot
	case ToggleAutoClose:
		return t.AutoClose
	case ToggleUseWorktree:
		return t.UseWorktree
	case ToggleUseMemory:
		return t.UseMemory
	default:
		return nil
	}
}

func (t *Toggles) set(key ToggleKey, v *bool) {
	switch key {
	case ToggleAutoStart:
		t.AutoStart = v
	case ToggleAutoPilot:
		t.AutoPilot = v
	case ToggleAutoClose:
		t.AutoClose = v
	case ToggleUseWorktree:
		t.UseWorktree = v
	case ToggleUseMemory:
		t.UseMemory = v
	}
}

// BoolPtr is a small helper for building *bool literals in config/tests.
func BoolPtr(b bool) *bool { return &b }

// Effective resolves a single toggle: task override, else lane default,
// else false. This is spec.md §4.3's effective() formula, used uniformly at
// both dispatch time and task-creation stamping time.
func Effective(task Toggles, lane Toggles, key ToggleKey) bool {
	if v := task.get(key); v != nil {
		return *v
	}
	if v := lane.get(key); v != nil {
		return *v
	}
	return false
}

// EffectiveAll resolves every toggle at once.
func EffectiveAll(task Toggles, lane Toggles) map[ToggleKey]bool {
	out := make(map[ToggleKey]bool, len(AllToggleKeys))
	for _, k := range AllToggleKeys {
		out[k] = Effective(task, lane, k)
	}
	return out
}

// StampInherited overwrites any task toggle that is currently inherit (nil)
// and whose lane default is true, with an explicit true — spec.md §4.3:
// "At task creation, inherit values that the lane sets to true are stamped
// onto the task so they persist independent of later lane edits." Toggles
// the lane leaves unset (nil) or false are left as inherit, so Effective
// keeps reading the current lane value for them and a later lane edit to
// true does apply to those tasks. Call it once, at creation.
func StampInherited(task Toggles, lane Toggles) Toggles {
	out := task
	for _, k := range AllToggleKeys {
		if task.get(k) != nil {
			continue
		}
		if v := lane.get(k); v != nil && *v {
			out.set(k, BoolPtr(true))
		}
	}
	return out
}
