package safety

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JoyZhuoz/CareLink-sub000/internal/models"
)

func TestDefaultPolicyValidates(t *testing.T) {
	policy := DefaultPolicy()
	if err := policy.Validate(); err != nil {
		t.Fatalf("default policy should validate: %v", err)
	}
	if len(policy.Questions) < models.MaxFollowups+1 {
		t.Errorf("default policy needs at least %d questions, got %d", models.MaxFollowups+1, len(policy.Questions))
	}
	for _, level := range []models.TriageLevel{models.TriageGreen, models.TriageYellow, models.TriageRed} {
		if policy.ClosingScript(level) == "" {
			t.Errorf("missing closing script for %s", level)
		}
		if policy.RecommendedAction(level) == "" {
			t.Errorf("missing recommended action for %s", level)
		}
	}
}

func TestClosingScriptUnknownLevelDefaultsToYellow(t *testing.T) {
	policy := DefaultPolicy()
	got := policy.ClosingScript(models.TriageLevel("PURPLE"))
	if got != policy.ClosingScripts[models.TriageYellow] {
		t.Errorf("unknown level should fall back to YELLOW script, got %q", got)
	}
}

func TestValidateRejectsBadPolicies(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Policy)
		wantErr string
	}{
		{"no hard stops", func(p *Policy) { p.HardStopPhrases = nil }, "hard-stop"},
		{"too few questions", func(p *Policy) { p.Questions = p.Questions[:1] }, "clarifying questions"},
		{"blank question id", func(p *Policy) { p.Questions[0].ID = "" }, "id and text"},
		{"duplicate question id", func(p *Policy) { p.Questions[1].ID = p.Questions[0].ID }, "duplicate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			policy := DefaultPolicy()
			tc.mutate(policy)
			err := policy.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestLoadPolicyFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := `
hard_stop_phrases:
  - "chest pain"
  - "seizure"
identity_question: "Is this the patient speaking?"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}

	policy, err := LoadPolicyFile(path)
	if err != nil {
		t.Fatalf("LoadPolicyFile failed: %v", err)
	}
	if len(policy.HardStopPhrases) != 2 {
		t.Errorf("expected overridden phrase list of 2, got %d", len(policy.HardStopPhrases))
	}
	if policy.IdentityQuestion != "Is this the patient speaking?" {
		t.Errorf("identity question not overridden: %q", policy.IdentityQuestion)
	}
	// Fields absent from the file keep their defaults.
	if len(policy.Questions) != len(DefaultPolicy().Questions) {
		t.Errorf("question set should keep defaults, got %d questions", len(policy.Questions))
	}
	if policy.OpeningQuestion == "" {
		t.Error("opening question default was lost")
	}
}

func TestLoadPolicyFileRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("hard_stop_phrases: []\n"), 0644); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}
	if _, err := LoadPolicyFile(path); err == nil {
		t.Fatal("expected error for policy with no hard stops")
	}
}

func TestLoadPolicyFileMissing(t *testing.T) {
	if _, err := LoadPolicyFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
