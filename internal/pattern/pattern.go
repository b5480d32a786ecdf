package pattern

import "strings"

// Matches reports whether a sender address satisfies an address pattern.
// A pattern is either a full address, compared as stored, or a domain
// wildcard of the form *@domain, whose domain part is compared
// case-insensitively.
func Matches(pattern, address string) bool {
	if rest := strings.TrimPrefix(pattern, "*@"); rest != pattern {
		domain := Domain(address)
		return domain != "" && strings.EqualFold(domain, rest)
	}

	return pattern == address
}

// Domain returns the part after the last "@", or "" when the address
// has no usable domain.
func Domain(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return ""
	}

	return address[at+1:]
}

// Valid reports whether a string is usable as an address pattern: a
// domain wildcard with a non-empty domain, or something that at least
// contains a local part and a domain.
func Valid(pattern string) bool {
	if rest := strings.TrimPrefix(pattern, "*@"); rest != pattern {
		return rest != "" && !strings.Contains(rest, "@")
	}

	at := strings.LastIndex(pattern, "@")
	return at > 0 && at < len(pattern)-1
}
