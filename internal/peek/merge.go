package peek

// sticky keeps prev when next carries nothing.
func sticky(prev, next string) string {
	if NonEmpty(next) {
		return next
	}
	return prev
}

// MergeNote applies the sticky-field rule field by field: an empty incoming
// value never overwrites a known non-empty one.
func MergeNote(prev, next Note) Note {
	return Note{
		NoteName:  sticky(prev.NoteName, next.NoteName),
		NoteBody:  sticky(prev.NoteBody, next.NoteBody),
		UpdatedAt: sticky(prev.UpdatedAt, next.UpdatedAt),
	}
}

// MergeScreen is the Screen counterpart of MergeNote.
func MergeScreen(prev, next Screen) Screen {
	return Screen{
		Contact:        sticky(prev.Contact, next.Contact),
		URL:            sticky(prev.URL, next.URL),
		ScreenshotPath: sticky(prev.ScreenshotPath, next.ScreenshotPath),
		UpdatedAt:      sticky(prev.UpdatedAt, next.UpdatedAt),
	}
}

// Covers reports whether every non-empty field of edit is present with the
// same value in server. Used to decide when a local edit has been echoed.
func (server Note) Covers(edit Note) bool {
	return covers(edit.NoteName, server.NoteName) && covers(edit.NoteBody, server.NoteBody)
}

func (server Screen) Covers(edit Screen) bool {
	return covers(edit.Contact, server.Contact) &&
		covers(edit.URL, server.URL) &&
		covers(edit.ScreenshotPath, server.ScreenshotPath)
}

func covers(edit, server string) bool {
	return !NonEmpty(edit) || edit == server
}
