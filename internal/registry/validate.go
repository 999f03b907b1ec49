package registry

import "regexp"

// idPattern matches spec §6: lowercase dotted, ending in .vN.
var idPattern = regexp.MustCompile(`^cap\.[a-z0-9._-]+\.v\d+$`)

// ValidID reports whether id matches the capability id format.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}
