package rules

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const defaultIterationLimit = 30

// Engine rewrites finalized dictation with substitutions loaded from a rules
// file: vocabulary fixes such as misheard drug names, or unit spellings.
type Engine struct {
	rules []Rule
	limit int
}

// Load reads the rules file at path. A missing file yields an engine that
// leaves text untouched.
func Load(path string, limit int) (*Engine, error) {
	if strings.TrimSpace(path) == "" {
		return New(nil, limit), nil
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(nil, limit), nil
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}
	defer file.Close()

	rules, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}
	return New(rules, limit), nil
}

func New(rules []Rule, limit int) *Engine {
	if limit <= 0 {
		limit = defaultIterationLimit
	}
	return &Engine{rules: rules, limit: limit}
}

// Len returns the number of loaded rules.
func (e *Engine) Len() int {
	return len(e.rules)
}

// Apply runs every rule in file order, repeating passes until the text stops
// changing or the iteration limit is reached.
func (e *Engine) Apply(text string) (string, error) {
	if len(e.rules) == 0 {
		return text, nil
	}

	result := text
	for pass := 0; pass < e.limit; pass++ {
		changed := false
		for _, rule := range e.rules {
			if next, ok := rule.Apply(result); ok {
				result = next
				changed = true
			}
		}
		if !changed {
			return collapseSpaces(result), nil
		}
	}
	return collapseSpaces(result), nil
}

// Parse reads one rule per line. Blank lines and lines starting with '#' are
// ignored.
func Parse(r io.Reader) ([]Rule, error) {
	contents, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var rules []Rule
	for index, raw := range strings.Split(string(contents), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rule, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseLine(line string) (Rule, error) {
	switch {
	case looksLikePattern(line):
		return parsePattern(line)
	case strings.Contains(line, "=>"):
		return parseTerm(line)
	default:
		return nil, errors.New("unsupported rule format")
	}
}

func collapseSpaces(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
