package classify

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule maps a pattern to the level tag assigned to matching lines.
type Rule struct {
	Level   string
	Pattern *regexp.Regexp
}

// Classifier assigns a level and response time to raw log lines.
// Rules are tried in order and the first match wins.
type Classifier struct {
	rules      []Rule
	extractors []*regexp.Regexp
}

// DefaultRules are the built-in rules in evaluation order. Matching is
// case-sensitive, so "Error" inside a class name does not hit ERROR.
var DefaultRules = []RuleSpec{
	{Level: "ERROR", Pattern: `ERROR`},
	{Level: "FATAL", Pattern: `FATAL`},
	{Level: "Exception", Pattern: `Exception`},
	{Level: "OutOfMemoryError", Pattern: `OutOfMemoryError`},
	{Level: "SQLException", Pattern: `SQLException`},
	{Level: "TimeoutException", Pattern: `TimeoutException`},
}

// DefaultExtractors pull the response time in milliseconds, tried in order.
var DefaultExtractors = []string{
	`\[(\d+)ms\]`,
	`response_time=(\d+)`,
}

// RuleSpec is the uncompiled form of a Rule, as read from a catalog file.
type RuleSpec struct {
	Level   string `yaml:"level"`
	Pattern string `yaml:"pattern"`
}

// Catalog is the on-disk rule file layout.
type Catalog struct {
	Rules      []RuleSpec `yaml:"rules"`
	Extractors []string   `yaml:"extractors"`
}

// Default returns a classifier built from the built-in catalog.
func Default() *Classifier {
	c, err := New(Catalog{Rules: DefaultRules, Extractors: DefaultExtractors})
	if err != nil {
		panic(err)
	}
	return c
}

// New compiles a catalog. An empty extractor list falls back to the defaults.
func New(cat Catalog) (*Classifier, error) {
	if len(cat.Rules) == 0 {
		return nil, fmt.Errorf("classify: catalog has no rules")
	}
	extractors := cat.Extractors
	if len(extractors) == 0 {
		extractors = DefaultExtractors
	}

	c := &Classifier{}
	for i, rs := range cat.Rules {
		level := strings.TrimSpace(rs.Level)
		if level == "" {
			return nil, fmt.Errorf("classify: rule %d: empty level", i)
		}
		re, err := regexp.Compile(rs.Pattern)
		if err != nil {
			return nil, fmt.Errorf("classify: rule %d (%s): %w", i, level, err)
		}
		c.rules = append(c.rules, Rule{Level: level, Pattern: re})
	}
	for i, expr := range extractors {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("classify: extractor %d: %w", i, err)
		}
		if re.NumSubexp() != 1 {
			return nil, fmt.Errorf("classify: extractor %d (%s) must have exactly one capture group", i, expr)
		}
		c.extractors = append(c.extractors, re)
	}
	return c, nil
}

// Load reads a YAML catalog from path.
func Load(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classify: read %s: %w", path, err)
	}
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("classify: parse %s: %w", path, err)
	}
	return New(cat)
}

// Level returns the level of the first matching rule.
func (c *Classifier) Level(line string) (string, bool) {
	for _, r := range c.rules {
		if r.Pattern.MatchString(line) {
			return r.Level, true
		}
	}
	return "", false
}

// ResponseTime returns the value captured by the first extractor that matches
// with a parseable number, or 0.
func (c *Classifier) ResponseTime(line string) int {
	for _, re := range c.extractors {
		m := re.FindStringSubmatch(line)
		if len(m) < 2 {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 0 {
			continue
		}
		return n
	}
	return 0
}

// Levels lists the rule levels in evaluation order.
func (c *Classifier) Levels() []string {
	out := make([]string, len(c.rules))
	for i, r := range c.rules {
		out[i] = r.Level
	}
	return out
}
