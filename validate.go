package homie

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gosimple/slug"
)

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]+$`)

// ValidateID checks that an id conforms to the Homie standard.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty identifier", ErrInvalidIdentifier)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}
	return nil
}

// IDFromName converts a friendly name into a valid id.
// "Living Room Plug #2" becomes "living-room-plug-2".
func IDFromName(name string) (string, error) {
	id := strings.Trim(slug.Make(name), "-_")
	id = strings.ReplaceAll(id, "_", "-")
	if err := ValidateID(id); err != nil {
		return "", fmt.Errorf("name %q: %w", name, err)
	}
	return id, nil
}
