package secrets

import (
	"regexp"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/opsagent/internal/config"
)

// Finding locates one redacted value. The value itself is never kept.
type Finding struct {
	RuleID string `json:"rule_id"`
	Line   int    `json:"line"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
}

// Result is the outcome of one Scrub call.
type Result struct {
	Scrubbed string         `json:"scrubbed"`
	Findings []Finding      `json:"findings,omitempty"`
	ByRule   map[string]int `json:"by_rule,omitempty"`
}

// Redacted reports whether anything was replaced.
func (r Result) Redacted() bool { return len(r.Findings) > 0 }

// Scrubber redacts secrets from text. Safe for concurrent use; a nil
// *Scrubber returns text unchanged.
type Scrubber struct {
	enabled   bool
	redaction string
	rules     []compiledRule
	allow     []*regexp.Regexp
}

// New compiles cfg.
func New(cfg Config) (*Scrubber, error) {
	rules, allow, err := cfg.compile()
	if err != nil {
		return nil, err
	}
	s := &Scrubber{enabled: cfg.Enabled, redaction: cfg.Redaction, rules: rules, allow: allow}
	if s.redaction == "" {
		s.redaction = DefaultRedaction
	}
	return s, nil
}

// FromConfig builds the scrubber described by the secrets config section.
// When enabled, the values of known configured credentials are redacted too.
func FromConfig(cfg config.SecretsConfig, known ...config.Secret) (*Scrubber, error) {
	c := DefaultConfig()
	c.Enabled = cfg.Enabled
	allow, err := LoadAllowlist(cfg.AllowlistFile)
	if err != nil {
		return nil, err
	}
	c.Allow = allow
	for _, k := range known {
		if len(k.Value()) < 8 {
			continue
		}
		c.Rules = append(c.Rules, Rule{
			ID:          "configured-secret",
			Description: "Value of a configured credential",
			Pattern:     regexp.QuoteMeta(k.Value()),
		})
	}
	return New(c)
}

// Enabled reports whether Scrub redacts anything.
func (s *Scrubber) Enabled() bool {
	return s != nil && s.enabled
}

type span struct{ start, end int }

// Scrub replaces every rule match in text that is not allowlisted.
func (s *Scrubber) Scrub(text string) Result {
	res := Result{Scrubbed: text}
	if !s.Enabled() || text == "" {
		return res
	}

	var spans []span
	for _, r := range s.rules {
		if !r.applies(text) {
			continue
		}
		for _, m := range r.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[2*r.Group], m[2*r.Group+1]
			if start < 0 || start == end || s.allowed(text[m[0]:m[1]]) {
				continue
			}
			spans = append(spans, span{start, end})
			res.Findings = append(res.Findings, Finding{
				RuleID: r.ID,
				Line:   strings.Count(text[:start], "\n") + 1,
				Start:  start,
				End:    end,
			})
			if res.ByRule == nil {
				res.ByRule = map[string]int{}
			}
			res.ByRule[r.ID]++
		}
	}
	if len(spans) == 0 {
		return res
	}

	var b strings.Builder
	last := 0
	for _, sp := range merge(spans) {
		b.WriteString(text[last:sp.start])
		b.WriteString(s.redaction)
		last = sp.end
	}
	b.WriteString(text[last:])
	res.Scrubbed = b.String()
	return res
}

// Clean is Scrub returning only the redacted text.
func (s *Scrubber) Clean(text string) string {
	return s.Scrub(text).Scrubbed
}

func (r compiledRule) applies(text string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(text) {
			return true
		}
	}
	return false
}

func (s *Scrubber) allowed(match string) bool {
	for _, re := range s.allow {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

// merge sorts spans and joins overlapping ones.
func merge(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	out := []span{spans[0]}
	for _, sp := range spans[1:] {
		last := &out[len(out)-1]
		if sp.start <= last.end {
			last.end = max(last.end, sp.end)
			continue
		}
		out = append(out, sp)
	}
	return out
}
