package domain

import "regexp"

// =============================================================================
// Slug Handling
// =============================================================================

// slugPattern matches a DNS-safe region name: lowercase alphanumerics and
// hyphens, starting and ending with an alphanumeric.
var slugPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// Slugify converts a name to a DNS-safe slug.
//
// The transformation rules are:
//   - Lowercase letters (a-z), digits (0-9), and hyphens (-) are kept as-is
//   - Uppercase letters (A-Z) are converted to lowercase
//   - Spaces and underscores are converted to hyphens
//   - All other characters are removed
//
// Example:
//
//	Slugify("Frontier 7")   // returns "frontier-7"
//	Slugify("New_Terra!")   // returns "new-terra"
func Slugify(name string) string {
	slug := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-':
			slug = append(slug, r)
		case r >= 'A' && r <= 'Z':
			slug = append(slug, r+32)
		case r == ' ' || r == '_':
			slug = append(slug, '-')
		}
	}
	return string(slug)
}

// ValidSlug reports whether name is already a well-formed region slug.
// It does not enforce length bounds; those are a validation policy concern.
func ValidSlug(name string) bool {
	return slugPattern.MatchString(name)
}
