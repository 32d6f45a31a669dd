package respcache

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var defaultPolicyYAML []byte

// Rule assigns a TTL to endpoints containing Match.
type Rule struct {
	Match string
	TTL   time.Duration
}

// Policy maps endpoints to TTLs.
type Policy struct {
	Default time.Duration
	Rules   []Rule
}

type policyDoc struct {
	Default string `yaml:"default"`
	Rules   []struct {
		Match string `yaml:"match"`
		TTL   string `yaml:"ttl"`
	} `yaml:"rules"`
}

// ParsePolicy parses a YAML policy document.
func ParsePolicy(data []byte) (*Policy, error) {
	var doc policyDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing ttl policy: %w", err)
	}

	def, err := time.ParseDuration(doc.Default)
	if err != nil {
		return nil, fmt.Errorf("parsing default ttl %q: %w", doc.Default, err)
	}
	if def <= 0 {
		return nil, fmt.Errorf("default ttl must be positive, got %s", def)
	}

	p := &Policy{Default: def}
	for _, r := range doc.Rules {
		match := strings.ToLower(strings.TrimSpace(r.Match))
		if match == "" {
			return nil, fmt.Errorf("ttl rule with empty match")
		}
		ttl, err := time.ParseDuration(r.TTL)
		if err != nil {
			return nil, fmt.Errorf("parsing ttl for %q: %w", match, err)
		}
		if ttl <= 0 {
			return nil, fmt.Errorf("ttl for %q must be positive, got %s", match, ttl)
		}
		p.Rules = append(p.Rules, Rule{Match: match, TTL: ttl})
	}
	return p, nil
}

// DefaultPolicy returns the embedded policy: modules long, quizzes medium,
// everything else short.
func DefaultPolicy() *Policy {
	p, err := ParsePolicy(defaultPolicyYAML)
	if err != nil {
		panic(err) // embedded document is fixed at build time
	}
	return p
}

// TTLFor returns the TTL for endpoint.
func (p *Policy) TTLFor(endpoint string) time.Duration {
	ep := strings.ToLower(endpoint)
	for _, r := range p.Rules {
		if strings.Contains(ep, r.Match) {
			return r.TTL
		}
	}
	return p.Default
}

// Override replaces the TTL of the rule matching match, appending a rule
// if none exists. A non-positive ttl is ignored.
func (p *Policy) Override(match string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	match = strings.ToLower(match)
	for i := range p.Rules {
		if p.Rules[i].Match == match {
			p.Rules[i].TTL = ttl
			return
		}
	}
	p.Rules = append(p.Rules, Rule{Match: match, TTL: ttl})
}

// SetDefault replaces the fallback TTL. A non-positive ttl is ignored.
func (p *Policy) SetDefault(ttl time.Duration) {
	if ttl > 0 {
		p.Default = ttl
	}
}
