package storage

// MatchPattern reports whether str matches a Redis glob-style pattern.
//
//	*      matches any sequence of characters, including none
//	?      matches exactly one character
//	[abc]  matches one character of the set, [^abc] negates it
//	[a-z]  matches one character of the range
//	\x     matches x literally
func MatchPattern(str, pattern string) bool {
	if pattern == "*" {
		return true
	}
	return matchAutomaton(str, pattern, 0, 0, make(map[[2]int]bool))
}

// matchAutomaton implements recursive pattern matching with memoization
func matchAutomaton(str, pattern string, strIdx, patIdx int, memo map[[2]int]bool) bool {
	key := [2]int{strIdx, patIdx}
	if result, exists := memo[key]; exists {
		return result
	}

	var result bool

	switch {
	case patIdx == len(pattern):
		result = strIdx == len(str)

	case pattern[patIdx] == '*':
		// Zero characters, or one more character
		result = matchAutomaton(str, pattern, strIdx, patIdx+1, memo) ||
			(strIdx < len(str) && matchAutomaton(str, pattern, strIdx+1, patIdx, memo))

	case strIdx == len(str):
		result = false

	case pattern[patIdx] == '?':
		result = matchAutomaton(str, pattern, strIdx+1, patIdx+1, memo)

	case pattern[patIdx] == '[':
		matched, next := matchClass(pattern, patIdx, str[strIdx])
		result = matched && matchAutomaton(str, pattern, strIdx+1, next, memo)

	case pattern[patIdx] == '\\' && patIdx+1 < len(pattern):
		result = pattern[patIdx+1] == str[strIdx] && matchAutomaton(str, pattern, strIdx+1, patIdx+2, memo)

	default:
		result = pattern[patIdx] == str[strIdx] && matchAutomaton(str, pattern, strIdx+1, patIdx+1, memo)
	}

	memo[key] = result
	return result
}

// matchClass matches c against the bracket expression opening at
// pattern[open]. It returns the match result and the index just past the
// closing bracket. An unterminated class runs to the end of the pattern.
func matchClass(pattern string, open int, c byte) (bool, int) {
	i := open + 1
	negate := false
	if i < len(pattern) && pattern[i] == '^' {
		negate = true
		i++
	}

	matched := false
	for i < len(pattern) && pattern[i] != ']' {
		switch {
		case pattern[i] == '\\' && i+1 < len(pattern):
			if pattern[i+1] == c {
				matched = true
			}
			i += 2
		case i+2 < len(pattern) && pattern[i+1] == '-' && pattern[i+2] != ']':
			lo, hi := pattern[i], pattern[i+2]
			if lo > hi {
				lo, hi = hi, lo
			}
			if c >= lo && c <= hi {
				matched = true
			}
			i += 3
		default:
			if pattern[i] == c {
				matched = true
			}
			i++
		}
	}

	if i < len(pattern) {
		i++ // closing bracket
	}
	return matched != negate, i
}
