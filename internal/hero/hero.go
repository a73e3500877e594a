package hero

import "github.com/DoyleJ11/sensus-peek/internal/peek"

type Kind string

const (
	KindNone       Kind = ""
	KindNote       Kind = "note"
	KindScreenshot Kind = "screenshot"
	KindURL        Kind = "url"
	KindContact    Kind = "contact"
)

// Hero is the content block promoted to the large central position.
// Content holds the note body, screenshot path, url or contact depending on Kind.
type Hero struct {
	Kind    Kind   `json:"kind"`
	Content string `json:"content,omitempty"`
}

// staticPriority is used when nothing has just changed.
var staticPriority = []Kind{KindScreenshot, KindNote, KindContact, KindURL}

/*
	Select order, first match wins:
	  screen changed   -> screenshot > url > contact, the first field that changed and is set
	  note changed     -> note, if it has a body
	  no current hero  -> static priority
	  otherwise        -> keep current
	Screen always outranks note when both change in the same tick.
	A result whose content is gone falls back to static priority.
*/
func Select(prevNote peek.Note, prevScreen peek.Screen, nextNote peek.Note, nextScreen peek.Screen, current Kind) Kind {
	screenChanged := prevScreen != nextScreen
	noteChanged := prevNote != nextNote

	next := KindNone
	switch {
	case screenChanged && changedScreenField(prevScreen, nextScreen) != KindNone:
		next = changedScreenField(prevScreen, nextScreen)
	case noteChanged && nextNote.HasNote():
		next = KindNote
	case current == KindNone:
		next = byPriority(nextNote, nextScreen)
	default:
		next = current
	}

	if !present(next, nextNote, nextScreen) {
		return byPriority(nextNote, nextScreen)
	}
	return next
}

// Initial picks the hero for the first snapshot of a session, where every
// field with content would otherwise count as changed.
func Initial(n peek.Note, s peek.Screen) Kind { return byPriority(n, s) }

func changedScreenField(prev, next peek.Screen) Kind {
	if prev.ScreenshotPath != next.ScreenshotPath && next.HasScreenshot() {
		return KindScreenshot
	}
	if prev.URL != next.URL && next.HasURL() {
		return KindURL
	}
	if prev.Contact != next.Contact && next.HasContact() {
		return KindContact
	}
	return KindNone
}

func byPriority(n peek.Note, s peek.Screen) Kind {
	for _, k := range staticPriority {
		if present(k, n, s) {
			return k
		}
	}
	return KindNone
}

func present(k Kind, n peek.Note, s peek.Screen) bool {
	switch k {
	case KindNote:
		return n.HasNote()
	case KindScreenshot:
		return s.HasScreenshot()
	case KindURL:
		return s.HasURL()
	case KindContact:
		return s.HasContact()
	default:
		return false
	}
}

// Build attaches the payload for kind.
func Build(k Kind, n peek.Note, s peek.Screen) Hero {
	switch k {
	case KindNote:
		return Hero{Kind: k, Content: n.NoteBody}
	case KindScreenshot:
		return Hero{Kind: k, Content: s.ScreenshotPath}
	case KindURL:
		return Hero{Kind: k, Content: s.URL}
	case KindContact:
		return Hero{Kind: k, Content: s.Contact}
	default:
		return Hero{}
	}
}
