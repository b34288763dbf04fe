package command

import "math"

// ParseInt is a best-effort integer parse that never fails.
//
// Leading whitespace is skipped, then an optional sign, then as many decimal
// digits as follow. Parsing stops at the first other byte. No digits at all
// yields 0, so "12abc" is 12, " -3" is -3 and "abc" is 0. Results saturate at
// the 32-bit range.
func ParseInt(s string) int {
	i := 0
	for i < len(s) && isSpace(s[i]) {
		i++
	}

	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}

	var n int64
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = n*10 + int64(s[i]-'0')
		if n > math.MaxInt32+1 {
			n = math.MaxInt32 + 1
		}
	}

	if neg {
		n = -n
	}
	if n > math.MaxInt32 {
		n = math.MaxInt32
	}
	return int(n)
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}
