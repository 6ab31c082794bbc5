// version.go validates policy version labels and template version strings and
// orders them for template upgrade checks.
package validation

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/hashicorp/go-version"
)

// ValidateVersionLabel checks that a policy version label such as "v1",
// "v1.0" or "2.1.3" parses as a version.
func ValidateVersionLabel(label string) error {
	if strings.TrimSpace(label) == "" {
		return fmt.Errorf("version label is required")
	}
	if _, err := version.NewVersion(label); err != nil {
		return fmt.Errorf("invalid version label %q: %w", label, err)
	}
	return nil
}

// CompareVersions compares two version labels
// Returns -1 if a < b, 0 if a == b, 1 if a > b
func CompareVersions(a, b string) (int, error) {
	va, err := version.NewVersion(a)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", a, err)
	}
	vb, err := version.NewVersion(b)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", b, err)
	}
	return va.Compare(vb), nil
}

// ValidateUpgrade checks that available is strictly newer than current.
func ValidateUpgrade(current, available string) error {
	cmp, err := CompareVersions(current, available)
	if err != nil {
		return err
	}
	if cmp >= 0 {
		return fmt.Errorf("available version %s is not newer than %s", available, current)
	}
	return nil
}

// ValidateEmail checks for a bare address ("ada@example.com"), rejecting
// display-name forms.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("invalid email address %q", email)
	}
	return nil
}
