package spam

import "regexp"

// Injection score thresholds: below flag the content passes untouched, at
// flag it is admitted quarantined, at reject it never persists.
const (
	InjectionFlagThreshold   = 3
	InjectionRejectThreshold = 6
)

type injectionPattern struct {
	name   string
	weight int
	re     *regexp.Regexp
}

// Three tiers: direct instructions to the reader model (+3), delimiter and
// role-marker smuggling (+2), and weaker tells (+1). Each pattern scores at
// most once per document.
var injectionPatterns = []injectionPattern{
	// Direct instruction overrides.
	{"ignore_instructions", 3, regexp.MustCompile(`(?i)ignore\s+(?:all\s+|any\s+)?(?:previous|prior|above|earlier)\s+(?:instructions|prompts|context|messages)`)},
	{"disregard_instructions", 3, regexp.MustCompile(`(?i)disregard\s+(?:all\s+|any\s+)?(?:previous|prior|your)\s+(?:instructions|prompts|rules|guidelines)`)},
	{"forget_instructions", 3, regexp.MustCompile(`(?i)forget\s+(?:everything|all\s+previous|your\s+(?:instructions|training))`)},
	{"you_are_now", 3, regexp.MustCompile(`(?i)you\s+are\s+now\s+`)},
	{"system_prompt", 3, regexp.MustCompile(`(?i)(?:system|new)\s+prompt\s*:`)},
	{"new_instructions", 3, regexp.MustCompile(`(?i)new\s+instructions?\s*:`)},
	{"override_rules", 3, regexp.MustCompile(`(?i)override\s+(?:your|all|previous|safety)\s+`)},
	{"pretend_to_be", 3, regexp.MustCompile(`(?i)pretend\s+(?:you\s+are|to\s+be)\s+`)},

	// Delimiter and role-marker attacks.
	{"chatml_marker", 2, regexp.MustCompile(`<\|im_(?:start|end)\|>`)},
	{"llama_inst", 2, regexp.MustCompile(`\[/?INST\]`)},
	{"llama_sys", 2, regexp.MustCompile(`<</?SYS>>`)},
	{"system_tag", 2, regexp.MustCompile(`(?i)</?system>`)},
	{"assistant_tag", 2, regexp.MustCompile(`(?i)</?assistant>`)},
	{"heading_system", 2, regexp.MustCompile(`(?i)###\s*(?:system|instructions?)\b`)},
	{"fenced_system", 2, regexp.MustCompile("(?i)```\\s*system")},

	// Suspicious but not decisive on their own.
	{"from_now_on", 1, regexp.MustCompile(`(?i)from\s+now\s+on\b`)},
	{"act_as", 1, regexp.MustCompile(`(?i)\bact\s+as\s+(?:a|an|the)\b`)},
	{"do_anything_now", 1, regexp.MustCompile(`(?i)do\s+anything\s+now`)},
	{"jailbreak", 1, regexp.MustCompile(`(?i)\bjailbreak`)},
	{"developer_mode", 1, regexp.MustCompile(`(?i)developer\s+mode`)},
	{"no_longer_bound", 1, regexp.MustCompile(`(?i)no\s+longer\s+(?:bound|restricted|limited)\s+by`)},
	{"base64_blob", 1, regexp.MustCompile(`[A-Za-z0-9+/]{80,}={0,2}`)},
}

// InjectionResult is the outcome of scoring one document.
type InjectionResult struct {
	Score    int
	Patterns []string
}

// Rejects reports whether the score forces a REJECT.
func (r InjectionResult) Rejects() bool {
	return r.Score >= InjectionRejectThreshold
}

// Flags reports whether the score quarantines without rejecting.
func (r InjectionResult) Flags() bool {
	return r.Score >= InjectionFlagThreshold && r.Score < InjectionRejectThreshold
}

// ScoreInjection evaluates content against all pattern tiers.
func ScoreInjection(content string) InjectionResult {
	var result InjectionResult
	for _, p := range injectionPatterns {
		if p.re.MatchString(content) {
			result.Score += p.weight
			result.Patterns = append(result.Patterns, p.name)
		}
	}
	return result
}

// ContainsInjection reports whether any pattern matches at all. Usernames
// reject on any match, regardless of tier.
func ContainsInjection(s string) bool {
	for _, p := range injectionPatterns {
		if p.re.MatchString(s) {
			return true
		}
	}
	return false
}
