// Package transfer implements the challenge import controller that sits behind the
// admin transfer page: it packages the import form into a multipart payload, posts it
// to the import endpoint and reflects the result in two feedback regions.
//
// The controller never touches a concrete UI. Hosts provide a Form, a Trigger and two
// Regions; the dom package binds them to the browser page and the term package binds
// them to a terminal.
package transfer

// Endpoint is the path the import form is posted to.
const Endpoint = "/admin/yaml"

// GenericErrorMessage is shown whenever no structured response could be obtained.
const GenericErrorMessage = "Something went wrong while importing the challenges. Please try again."

// Element ids of the transfer page.
const (
	ImportButtonID = "import-chall-button"
	ImportFormID   = "import-form"
	FilePickerID   = "import-file"
	SuccessAlertID = "success-alert"
	ErrorAlertID   = "error-alert"
)

// FileField is the name of the multipart field carrying the archive.
const FileField = "file"

// Form is the upload form read by the controller.
type Form interface {
	// Snapshot returns the form's current field values.
	Snapshot() (FormData, error)
	// Reset restores every field to its default.
	Reset()
}

// Region is a feedback element that is either shown or hidden.
type Region interface {
	Show()
	Hide()
	SetText(text string)
	SetHTML(markup string)
}

// Trigger is the control that starts a submission.
type Trigger interface {
	SetDisabled(disabled bool)
}

// FormData holds the values of a form at click time.
type FormData struct {
	Values []FormValue
	Files  []FormFile
}

// FormValue is a plain form field.
type FormValue struct {
	Name  string
	Value string
}

// FormFile is a file chosen in a file input.
type FormFile struct {
	Field       string
	Filename    string
	ContentType string
	Content     []byte
}

// ContentMode selects how server supplied error text is put into the error region.
type ContentMode int

const (
	// PlainText inserts the text verbatim as text content.
	PlainText ContentMode = iota
	// TrustedMarkup inserts the text as markup. Only for backends that are trusted to
	// send safe HTML.
	TrustedMarkup
)

func (m ContentMode) String() string {
	switch m {
	case PlainText:
		return "text"
	case TrustedMarkup:
		return "markup"
	default:
		return "unknown"
	}
}

// ParseContentMode maps "text" and "markup" to their ContentMode.
func ParseContentMode(s string) (ContentMode, bool) {
	switch s {
	case "", "text":
		return PlainText, true
	case "markup", "html":
		return TrustedMarkup, true
	default:
		return PlainText, false
	}
}

// Outcome is how a submission settled.
type Outcome int

const (
	// Accepted means the server imported the archive.
	Accepted Outcome = iota
	// Rejected means the server answered and refused the archive.
	Rejected
	// TransportFailed means no structured answer was obtained.
	TransportFailed
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case TransportFailed:
		return "transport_failed"
	default:
		return "unknown"
	}
}
