package peek

import "strings"

// Spectator is the spectator's personal data as entered on the other device.
type Spectator struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Birthday    string `json:"birthday"`
	Address     string `json:"address"`
	DaysAlive   *int   `json:"days_alive,omitempty"`
}

// Note mirrors the note_peek resource. Null fields decode to "".
type Note struct {
	NoteName  string `json:"note_name"`
	NoteBody  string `json:"note_body"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Screen mirrors the screen_peek resource. A non-empty ScreenshotPath means
// the backend holds a screenshot for the user.
type Screen struct {
	Contact        string `json:"contact"`
	URL            string `json:"url"`
	ScreenshotPath string `json:"screenshot_path"`
	UpdatedAt      string `json:"updated_at,omitempty"`
}

func NonEmpty(s string) bool { return strings.TrimSpace(s) != "" }

func (n Note) HasNote() bool { return NonEmpty(n.NoteBody) }

func (s Screen) HasScreenshot() bool { return NonEmpty(s.ScreenshotPath) }
func (s Screen) HasURL() bool        { return NonEmpty(s.URL) }
func (s Screen) HasContact() bool    { return NonEmpty(s.Contact) }

func (s Spectator) IsEmpty() bool {
	return !NonEmpty(s.FirstName) && !NonEmpty(s.LastName) && !NonEmpty(s.PhoneNumber) &&
		!NonEmpty(s.Birthday) && !NonEmpty(s.Address)
}
