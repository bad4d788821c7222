package watchdog

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/swipswaps/paddle-ocr/internal/models"
)

// Rule maps a recognizable fragment of backend log text to the phase it
// implies. Rules are tried in order; the first match wins. Keeping the
// table as data lets the heuristics evolve without touching the timer
// logic.
type Rule struct {
	re    *regexp.Regexp
	phase models.JobPhase
}

func (r Rule) Phase() models.JobPhase { return r.phase }

// RuleSpec is the serialized form of a Rule.
type RuleSpec struct {
	Match string `yaml:"match"`
	Phase string `yaml:"phase"`
}

// DefaultRules matches the narrative the stock backend emits while
// processing an image.
func DefaultRules() []Rule {
	rules, err := CompileRules([]RuleSpec{
		{Match: `Starting analysis`, Phase: string(models.PhaseRecognizing)},
		{Match: `Detected \d+ text blocks`, Phase: string(models.PhaseLayout)},
		{Match: `Processing layout`, Phase: string(models.PhaseLayout)},
		{Match: `Organized into \d+ rows`, Phase: string(models.PhaseLayout)},
		{Match: `OCR Processing Failed`, Phase: string(models.PhaseFailed)},
		{Match: `Saved to database`, Phase: string(models.PhaseComplete)},
	})
	if err != nil {
		panic(err) // built-in table must compile
	}
	return rules
}

// CompileRules turns specs into matchable rules. Matching is
// case-insensitive.
func CompileRules(specs []RuleSpec) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	for _, s := range specs {
		phase := models.JobPhase(s.Phase)
		switch phase {
		case models.PhaseUploading, models.PhaseAwaitingResponse, models.PhaseRecognizing,
			models.PhaseLayout, models.PhaseComplete, models.PhaseFailed:
		default:
			return nil, fmt.Errorf("rule %q: unknown phase %q", s.Match, s.Phase)
		}
		re, err := regexp.Compile("(?i)" + s.Match)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", s.Match, err)
		}
		rules = append(rules, Rule{re: re, phase: phase})
	}
	return rules, nil
}

// LoadRules reads a YAML rule table, e.g.
//
//	- match: "Starting analysis"
//	  phase: recognizing
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern file: %w", err)
	}
	var specs []RuleSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse pattern file: %w", err)
	}
	return CompileRules(specs)
}

// MatchPhase returns the phase implied by one log line, or "" when no
// rule matches.
func MatchPhase(rules []Rule, message string) models.JobPhase {
	for _, r := range rules {
		if r.re.MatchString(message) {
			return r.phase
		}
	}
	return ""
}
