// Package safety defines the triage policy: hard-stop phrases, the clarifying
// question set, and the scripted lines the caller hears.
package safety

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/JoyZhuoz/CareLink-sub000/internal/models"
	"gopkg.in/yaml.v3"
)

// Question is one clarifying question in the fixed follow-up set. Questions
// are identified by ID so an "asked" set can be tracked per session without
// ambiguity about near-duplicate phrasing.
type Question struct {
	ID   string `yaml:"id" json:"id"`
	Text string `yaml:"text" json:"text"`
}

// Policy bundles everything script-like about a check-in call. A compiled-in
// default ships with the binary; deployments may override it with a YAML file.
type Policy struct {
	// HardStopPhrases always force RED and termination when matched.
	HardStopPhrases []string `yaml:"hard_stop_phrases"`

	// Questions is the clarifying-question set in priority order:
	// onset/timeline, trend, severity scale, location.
	Questions []Question `yaml:"questions"`

	IdentityQuestion   string `yaml:"identity_question"`
	OpeningQuestion    string `yaml:"opening_question"`
	RepromptPrefix     string `yaml:"reprompt_prefix"`
	DeclinationClosing string `yaml:"declination_closing"`
	UnverifiedClosing  string `yaml:"unverified_closing"`

	// ClosingScripts maps the final triage level to the closing line spoken
	// before hangup.
	ClosingScripts map[models.TriageLevel]string `yaml:"closing_scripts"`

	// RecommendedActions maps a triage level to the generic care-team action
	// used when the oracle supplies none.
	RecommendedActions map[models.TriageLevel]string `yaml:"recommended_actions"`
}

// DefaultPolicy returns the compiled-in triage policy.
func DefaultPolicy() *Policy {
	return &Policy{
		HardStopPhrases: []string{
			"chest pain",
			"chest pressure",
			"crushing pain",
			"can't breathe",
			"cannot breathe",
			"trouble breathing",
			"short of breath",
			"shortness of breath",
			"won't stop bleeding",
			"wont stop bleeding",
			"uncontrolled bleeding",
			"bleeding through",
			"soaked in blood",
			"confused",
			"confusion",
			"disoriented",
			"radiating",
			"spreading down",
			"spreading up",
			"pain spreading",
			"passed out",
			"passing out",
			"fainted",
			"very high fever",
			"fever of 103",
			"fever of 104",
			"103 degrees",
			"104 degrees",
			"call 911",
			"911",
			"emergency",
		},
		Questions: []Question{
			{ID: "onset", Text: "When did this start? Did it come on suddenly or gradually?"},
			{ID: "trend", Text: "Is it getting better, getting worse, or staying about the same?"},
			{ID: "severity", Text: "On a scale of one to ten, how bad is it right now?"},
			{ID: "location", Text: "Where exactly do you feel it, and does it move anywhere else?"},
		},
		IdentityQuestion:   "Hello, this is the CareLink automated check-in calling on behalf of your care team. Am I speaking with the patient?",
		OpeningQuestion:    "Thank you for confirming. How are you feeling today? Have you noticed any new or worsening symptoms since your procedure?",
		RepromptPrefix:     "I'm sorry, I didn't catch that.",
		DeclinationClosing: "I understand. For privacy reasons I can only continue with the patient. I'll let the care team know to reach out another way. Goodbye.",
		UnverifiedClosing:  "I wasn't able to confirm I'm speaking with the right person, so I'll end the call here. The care team will follow up directly. Goodbye.",
		ClosingScripts: map[models.TriageLevel]string{
			models.TriageRed:    "Based on what you've told me, you should get medical attention right away. Please contact your surgeon's urgent line or emergency services now. The care team has been notified. Goodbye.",
			models.TriageYellow: "Thank you for the details. A member of your care team will follow up with you within the next day or two. If anything gets worse in the meantime, please call your care team right away. Goodbye.",
			models.TriageGreen:  "That all sounds like normal recovery. Keep following your aftercare instructions, and your care team is available if anything changes. Goodbye.",
		},
		RecommendedActions: map[models.TriageLevel]string{
			models.TriageRed:    "escalate for urgent readmission or emergency evaluation",
			models.TriageYellow: "refer for outpatient follow-up within 24-48 hours",
			models.TriageGreen:  "continue routine monitoring",
		},
	}
}

// LoadPolicyFile reads a YAML policy override from path. Fields left empty in
// the file keep their compiled-in defaults.
func LoadPolicyFile(path string) (*Policy, error) {
	slog.Debug("safety.LoadPolicyFile: loading policy override", "path", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}
	policy := DefaultPolicy()
	if err := yaml.Unmarshal(data, policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy file %s: %w", path, err)
	}
	slog.Info("safety.LoadPolicyFile: policy override loaded", "path", path,
		"hardStopPhrases", len(policy.HardStopPhrases), "questions", len(policy.Questions))
	return policy, nil
}

// Validate checks that a policy can actually drive a call to completion.
func (p *Policy) Validate() error {
	if len(p.HardStopPhrases) == 0 {
		return fmt.Errorf("policy must define at least one hard-stop phrase")
	}
	// The fallback heuristic needs enough distinct questions to never repeat
	// itself across the follow-up budget plus the opening question.
	if len(p.Questions) < models.MaxFollowups+1 {
		return fmt.Errorf("policy must define at least %d clarifying questions, got %d", models.MaxFollowups+1, len(p.Questions))
	}
	seen := make(map[string]bool, len(p.Questions))
	for _, q := range p.Questions {
		if q.ID == "" || q.Text == "" {
			return fmt.Errorf("clarifying questions must have both id and text")
		}
		if seen[q.ID] {
			return fmt.Errorf("duplicate question id %q", q.ID)
		}
		seen[q.ID] = true
	}
	return nil
}

// ClosingScript returns the closing line for a triage level, defaulting to
// the YELLOW script for unknown levels.
func (p *Policy) ClosingScript(level models.TriageLevel) string {
	if s, ok := p.ClosingScripts[level]; ok {
		return s
	}
	return p.ClosingScripts[models.TriageYellow]
}

// RecommendedAction returns the generic care-team action for a triage level.
func (p *Policy) RecommendedAction(level models.TriageLevel) string {
	if a, ok := p.RecommendedActions[level]; ok {
		return a
	}
	return p.RecommendedActions[models.TriageYellow]
}
