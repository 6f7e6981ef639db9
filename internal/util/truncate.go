package util

import "fmt"

// DefaultLogMaxLen caps upstream bodies echoed into the log (1KB).
const DefaultLogMaxLen = 1024

// TruncateLog shortens s to maxLen bytes and notes the original size.
func TruncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// TruncateBytes is TruncateLog over a byte slice with DefaultLogMaxLen.
func TruncateBytes(b []byte) string {
	return TruncateLog(string(b), DefaultLogMaxLen)
}

// MaskToken keeps only the tail of a credential so log lines can tell
// two tokens apart without leaking them.
func MaskToken(t string) string {
	if len(t) <= 12 {
		return "***"
	}
	return "..." + t[len(t)-8:]
}

// MaskEmail hides the local part of an address except its first rune.
func MaskEmail(email string) string {
	for i, r := range email {
		if r == '@' {
			if i <= 1 {
				return "*" + email[i:]
			}
			return email[:1] + "***" + email[i:]
		}
	}
	return MaskToken(email)
}
