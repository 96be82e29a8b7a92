package helpers

// String returns the dereferenced value of the input pointer if it's not nil, otherwise, it returns an empty string.
func String(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Truncate shortens the given string to at most n runes, appending "..." if truncation occurs.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
