package export

import (
	"fmt"

	"github.com/opendatarepo/odr-backend/internal/platform/apierr"
)

// Primary delimiters are accepted by symbolic name on the API and travel
// through queue messages as the literal character.
var primaryDelimiters = map[string]string{
	"tab":       "\t",
	"space":     " ",
	"comma":     ",",
	"semicolon": ";",
	"colon":     ":",
	"pipe":      "|",
}

// Secondary delimiters join multi-valued cells, so the set excludes anything
// a primary delimiter or the quote handling could collide with.
var secondaryDelimiters = map[string]string{
	"semicolon": ";",
	"colon":     ":",
	"pipe":      "|",
}

// ParseDelimiter resolves a symbolic or literal primary delimiter.
func ParseDelimiter(name string) (string, error) {
	if d, ok := primaryDelimiters[name]; ok {
		return d, nil
	}
	for _, d := range primaryDelimiters {
		if name == d {
			return d, nil
		}
	}
	return "", apierr.InvalidDelimiter(fmt.Errorf("unsupported delimiter %q", name))
}

// ParseSecondaryDelimiter resolves the optional multi-value join delimiter.
// An empty name is valid and means "unset".
func ParseSecondaryDelimiter(name string) (string, error) {
	if name == "" {
		return "", nil
	}
	if d, ok := secondaryDelimiters[name]; ok {
		return d, nil
	}
	for _, d := range secondaryDelimiters {
		if name == d {
			return d, nil
		}
	}
	return "", apierr.InvalidDelimiter(fmt.Errorf("unsupported secondary delimiter %q", name))
}
