package model

import "strings"

// NormalizePhone formats US phone numbers as "(NNN) NNN-NNNN" at import
// time so every stored record carries one shape. A leading country code 1
// is dropped. Numbers that are not ten US digits come back trimmed but
// otherwise untouched; provider data is too messy to reject outright.
func NormalizePhone(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	var digits strings.Builder
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	if len(d) != 10 {
		return trimmed
	}
	return "(" + d[:3] + ") " + d[3:6] + "-" + d[6:]
}
