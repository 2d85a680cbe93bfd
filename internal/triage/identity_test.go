package triage

import "testing"

func TestClassifyIdentityKeyword(t *testing.T) {
	cases := []struct {
		utterance string
		want      IdentityVerdict
	}{
		{"yes", IdentityYes},
		{"Yes, speaking", IdentityYes},
		{"yeah that's me", IdentityYes},
		{"this is she", IdentityYes},
		{"no", IdentityNo},
		{"no, she's not home right now", IdentityNo},
		{"you have the wrong number", IdentityNo},
		{"nope, not me", IdentityNo},
		{"who is calling?", IdentityUnclear},
		{"", IdentityUnclear},
		{"   ", IdentityUnclear},
		{"um, maybe", IdentityUnclear},
		// Hedged answers: "no" inside "know" or "not" is not a denial.
		{"I'm not sure", IdentityUnclear},
		{"I don't know", IdentityUnclear},
		{"I know, hold on", IdentityUnclear},
		{"nobody by that name lives here", IdentityUnclear},
	}
	for _, tc := range cases {
		if got := classifyIdentityKeyword(tc.utterance); got != tc.want {
			t.Errorf("classifyIdentityKeyword(%q) = %v, want %v", tc.utterance, got, tc.want)
		}
	}
}
