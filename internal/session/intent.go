package session

import "context"

// Intent is one user command, decoupled from the keys that trigger it.
type Intent int

const (
	IntentNone Intent = iota
	IntentNext
	IntentPrev
	IntentMarkPass
	IntentMarkFail
	IntentClearJudgment
	IntentEditNote
	IntentDeleteNote
	IntentAttachMode
	IntentDetachMode
	IntentSuggest
	IntentSwitchLabeler
	IntentHelp
	IntentQuit
)

// keymap binds single keys to intents. Arrow keys are translated to
// 'h'/'l' by the terminal layer before lookup.
var keymap = map[byte]Intent{
	'l': IntentNext,
	'h': IntentPrev,
	'p': IntentMarkPass,
	'f': IntentMarkFail,
	'u': IntentClearJudgment,
	'n': IntentEditNote,
	'x': IntentDeleteNote,
	'a': IntentAttachMode,
	'd': IntentDetachMode,
	's': IntentSuggest,
	'w': IntentSwitchLabeler,
	'?': IntentHelp,
	'q': IntentQuit,
}

// IntentForKey maps a key byte to its intent, or IntentNone.
func IntentForKey(key byte) Intent {
	return keymap[key]
}

// Apply executes an intent that needs no further input. It returns
// handled=false for intents that require a dialog (note text, failure mode
// name, detach pick, labeler switch); the caller collects the input and
// invokes the matching Session method directly.
func (s *Session) Apply(ctx context.Context, intent Intent) (handled bool, err error) {
	switch intent {
	case IntentNext:
		return true, s.Advance(ctx)
	case IntentPrev:
		return true, s.Retreat(ctx)
	case IntentMarkPass:
		return true, s.SetJudgment(ctx, true)
	case IntentMarkFail:
		return true, s.SetJudgment(ctx, false)
	case IntentClearJudgment:
		return true, s.ClearJudgment(ctx)
	case IntentDeleteNote:
		return true, s.DeleteNote(ctx)
	default:
		return false, nil
	}
}
