package symbology

import "strings"

var tickerReplacer = strings.NewReplacer(".", "_", "+", "_", "-", "_")

// NormalizeTicker rewrites class separators so every vendor sees the same
// base ticker: BRK.B and BRK-B both become BRK_B.
func NormalizeTicker(raw string) string {
	return tickerReplacer.Replace(strings.TrimSpace(raw))
}
