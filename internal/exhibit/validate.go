package exhibit

import (
	"errors"
	"strings"
)

// Validate checks a [Feature] for the fields the guide relies on: a name to
// match against and an anchor to navigate to.
func Validate(feature Feature) error {
	var errs []error

	if strings.TrimSpace(feature.Name) == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if strings.TrimSpace(feature.Anchor) == "" {
		errs = append(errs, errors.New("anchor must not be empty"))
	}

	return errors.Join(errs...)
}
