package compoundfiles

import (
	"fmt"
	"path"
	"strings"
	"unicode"
	"unicode/utf16"
)

type Ordering int

const (
	OrderLess Ordering = iota
	OrderEqual
	OrderGreater
)

// ValidateName checks a proposed entry name: at most 31 UTF-16 code
// units, non-empty, and free of the path/storage separator characters.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("empty name: %w", ErrDirEntry)
	}
	if strings.ContainsAny(name, "/\\:!") {
		return fmt.Errorf("name contains one of /\\:! characters: %q: %w", name, ErrDirEntry)
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("name contains NUL: %w", ErrDirEntry)
	}
	if n := len(utf16.Encode([]rune(name))); n > MAX_NAME_LEN {
		return fmt.Errorf("name is %v UTF-16 code units, maximum is %v: %w", n, MAX_NAME_LEN, ErrDirEntry)
	}
	return nil
}

// upperUnit applies Unicode simple upper-casing to a single UTF-16 code
// unit. Surrogate halves and code points whose upper-case form leaves the
// BMP are compared as-is.
func upperUnit(u uint16) uint16 {
	if u >= 0xd800 && u <= 0xdfff {
		return u
	}
	up := unicode.ToUpper(rune(u))
	if up > 0xffff {
		return u
	}
	return uint16(up)
}

// CompareNames orders two names the way sibling trees are ordered:
// shorter name (in UTF-16 code units) first, then lexicographic on
// upper-cased code units.
func CompareNames(nameLeft, nameRight string) Ordering {
	ul := utf16.Encode([]rune(nameLeft))
	ur := utf16.Encode([]rune(nameRight))

	if len(ul) < len(ur) {
		return OrderLess
	}
	if len(ul) > len(ur) {
		return OrderGreater
	}
	for i := range ul {
		cl, cr := upperUnit(ul[i]), upperUnit(ur[i])
		if cl < cr {
			return OrderLess
		}
		if cl > cr {
			return OrderGreater
		}
	}
	return OrderEqual
}

// NameChainFromPath splits a path into its storage/stream names. Empty
// segments are skipped and a leading / means the root storage. Paths
// escaping the root yield an empty chain.
func NameChainFromPath(s string) []string {
	s = path.Clean(s)
	if s == "" || s == "." || s == "/" {
		return []string{}
	}

	if s[0] == '/' {
		s = s[1:]
	}

	if strings.HasPrefix(s, "..") {
		return []string{}
	}

	return strings.Split(s, "/")
}

func PathFromNameChain(names []string) string {
	return "/" + strings.Join(names, "/")
}
