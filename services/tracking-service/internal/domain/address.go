package domain

import "strings"

// NormalizeAddress lowercases an account so comparisons are case-insensitive
func NormalizeAddress(addr string) Address {
	return strings.ToLower(strings.TrimSpace(addr))
}

// FormatAddress shortens an account for display: 0x1234...abcd
func FormatAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// IsHexAddress reports whether addr looks like a 20-byte 0x-prefixed address
func IsHexAddress(addr string) bool {
	if len(addr) != 42 || !strings.HasPrefix(strings.ToLower(addr), "0x") {
		return false
	}
	for _, c := range addr[2:] {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
