package services

import "strings"

// NormalizePair orders two participant identifiers so that {a, b} and {b, a}
// always produce the same (first, second). Comparison is byte-wise.
func NormalizePair(a, b string) (first, second string, err error) {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)

	if a == "" || b == "" {
		return "", "", validationError("both participant ids are required")
	}
	if a == b {
		return "", "", validationError("a conversation needs two distinct participants")
	}

	if a < b {
		return a, b, nil
	}
	return b, a, nil
}

func pairKey(first, second string) string {
	return first + "|" + second
}
