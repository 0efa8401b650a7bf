package secrets

import (
	"errors"
	"fmt"
	"regexp"
)

// DefaultRedaction replaces every redacted value.
const DefaultRedaction = "[REDACTED]"

// Config configures a Scrubber.
type Config struct {
	Enabled   bool
	Rules     []Rule
	Redaction string
	// Allow holds patterns; a match that any of them matches is kept.
	Allow []string
}

// DefaultConfig enables the built-in rules.
func DefaultConfig() Config {
	return Config{Enabled: true, Rules: DefaultRules(), Redaction: DefaultRedaction}
}

type compiledRule struct {
	Rule
	re       *regexp.Regexp
	keywords []*regexp.Regexp
}

func (c Config) compile() ([]compiledRule, []*regexp.Regexp, error) {
	var errs []error
	rules := make([]compiledRule, 0, len(c.Rules))
	for i, r := range c.Rules {
		if r.ID == "" {
			errs = append(errs, fmt.Errorf("rule %d: id is required", i))
			continue
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", r.ID, err))
			continue
		}
		if r.Group > re.NumSubexp() {
			errs = append(errs, fmt.Errorf("rule %s: group %d out of range", r.ID, r.Group))
			continue
		}
		cr := compiledRule{Rule: r, re: re}
		for _, kw := range r.Keywords {
			cr.keywords = append(cr.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		rules = append(rules, cr)
	}

	allow := make([]*regexp.Regexp, 0, len(c.Allow))
	for _, p := range c.Allow {
		re, err := regexp.Compile(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w %q: %v", ErrInvalidRegex, p, err))
			continue
		}
		allow = append(allow, re)
	}
	return rules, allow, errors.Join(errs...)
}
