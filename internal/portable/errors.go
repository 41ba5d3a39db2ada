package portable

import (
	"errors"
	"strings"
)

var (
	ErrInvalidManifest      = errors.New("invalid challenge manifest")
	ErrMissingManifest      = errors.New("archive does not contain " + ManifestName)
	ErrUnsafePath           = errors.New("archive member escapes the extraction directory")
	ErrArchiveTooLarge      = errors.New("archive expands beyond the size limit")
	ErrInvalidArchive       = errors.New("invalid archive")
	ErrUnknownChallengeType = errors.New("unknown type of challenge")
)

// ValidationError lists what is wrong with the challenges of a manifest.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "\n")
}

// IsRejection reports whether err describes bad import content rather than a failure of
// the service itself.
func IsRejection(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr) ||
		errors.Is(err, ErrInvalidManifest) ||
		errors.Is(err, ErrUnknownChallengeType)
}
