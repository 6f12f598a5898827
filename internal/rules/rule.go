package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Rule is one compiled substitution.
type Rule interface {
	Apply(input string) (output string, changed bool)
}

// termRule replaces a spoken term with its written form. Matching is
// case-insensitive and bounded by word edges, so "mg" never matches inside
// "omg" and a dosage such as "5mg" is left alone by a rule for "5".
type termRule struct {
	re          *regexp.Regexp
	replacement string
}

func parseTerm(line string) (Rule, error) {
	from, to, _ := strings.Cut(line, "=>")
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" {
		return nil, errors.New("term rule source cannot be empty")
	}

	words := strings.Fields(from)
	for i, word := range words {
		words[i] = regexp.QuoteMeta(word)
	}
	re, err := regexp.Compile(`(?i)\b` + strings.Join(words, `\s+`) + `\b`)
	if err != nil {
		return nil, fmt.Errorf("invalid term source: %w", err)
	}
	return termRule{re: re, replacement: to}, nil
}

func (r termRule) Apply(input string) (string, bool) {
	output := r.re.ReplaceAllLiteralString(input, r.replacement)
	return output, output != input
}

// patternRule is a sed-style s/pattern/replacement/flags substitution.
// Patterns are case-insensitive; without 'g' only the first match changes.
type patternRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func parsePattern(line string) (Rule, error) {
	delim := line[1]

	pattern, pos, err := parseDelimited(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	replacement, pos, err := parseDelimited(line, pos, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid replacement: %w", err)
	}

	global := false
	inline := "i"
	for _, flag := range strings.TrimSpace(line[pos:]) {
		switch flag {
		case 'g':
			global = true
		case 'i':
		case 'm', 's':
			inline += string(flag)
		default:
			return nil, fmt.Errorf("unsupported pattern flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?" + inline + ")" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	return patternRule{re: re, replacement: replacement, global: global}, nil
}

func (r patternRule) Apply(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	loc := r.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}
	expanded := r.re.ExpandString(nil, r.replacement, input, loc)
	output := input[:loc[0]] + string(expanded) + input[loc[1]:]
	return output, output != input
}

func parseDelimited(line string, start int, delim byte) (string, int, error) {
	if start >= len(line) {
		return "", 0, errors.New("unexpected end of expression")
	}

	var builder strings.Builder
	escaped := false
	for index := start; index < len(line); index++ {
		char := line[index]
		if escaped {
			if char != delim {
				builder.WriteByte('\\')
			}
			builder.WriteByte(char)
			escaped = false
			continue
		}
		if char == '\\' {
			escaped = true
			continue
		}
		if char == delim {
			return builder.String(), index + 1, nil
		}
		builder.WriteByte(char)
	}
	return "", 0, errors.New("unterminated expression")
}

func looksLikePattern(line string) bool {
	if len(line) < 2 || line[0] != 's' {
		return false
	}
	delim := line[1]
	return !(delim >= 'a' && delim <= 'z') &&
		!(delim >= 'A' && delim <= 'Z') &&
		!(delim >= '0' && delim <= '9') &&
		delim != ' ' && delim != '\t'
}
