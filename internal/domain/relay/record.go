// Package relay holds the per-message relay state machine and record.
package relay

import "github.com/kotoba-cloud/lingorelay/internal/domain"

// State is the explicit relay state of an original message.
type State string

// Relay states. A message with no stored record is Untranslated; Removed is
// terminal (the record is deleted together with the mirrored message).
const (
	StateUntranslated State = "untranslated"
	StateMirrored     State = "mirrored"
	StateRemoved      State = "removed"
)

// CanMirror reports whether a first render may be dispatched from this state.
func (s State) CanMirror() bool { return s == StateUntranslated }

// CanUpdate reports whether an edit may be reconciled from this state.
func (s State) CanUpdate() bool { return s == StateMirrored }

// CanRemove reports whether the mirror may be torn down from this state.
func (s State) CanRemove() bool { return s == StateMirrored }

// Record is the durable mapping from an original message to its mirror,
// plus the last rendered content used for edit dedupe. Owned and mutated
// exclusively by the relay orchestrator.
type Record struct {
	OriginalMessageID  string
	MirroredMessageID  string
	BroadcasterID      string
	OriginalText       string
	RenderedText       string
	DetectedSourceLang domain.Language
	State              State
}

// Mirrored builds the record written after a successful first dispatch.
func Mirrored(originalID, mirroredID, broadcasterID, originalText, renderedText string,
	detected domain.Language,
) Record {
	return Record{
		OriginalMessageID:  originalID,
		MirroredMessageID:  mirroredID,
		BroadcasterID:      broadcasterID,
		OriginalText:       originalText,
		RenderedText:       renderedText,
		DetectedSourceLang: detected,
		State:              StateMirrored,
	}
}
