package safety

import (
	"testing"
)

func TestEngineMatchesHardStop(t *testing.T) {
	engine := NewEngine([]string{"chest pain", "uncontrolled bleeding", "911"})

	cases := []struct {
		name      string
		utterance string
		want      bool
	}{
		{"exact phrase", "I have chest pain", true},
		{"case insensitive", "I have CHEST Pain right now", true},
		{"phrase inside sentence", "should I call 911 about this?", true},
		{"no match", "my knee is a little sore", false},
		{"empty utterance", "", false},
		{"whitespace only", "   ", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := engine.MatchesHardStop(tc.utterance); got != tc.want {
				t.Errorf("MatchesHardStop(%q) = %v, want %v", tc.utterance, got, tc.want)
			}
		})
	}
}

func TestEngineMatchedPhrasesOrder(t *testing.T) {
	engine := NewEngine([]string{"chest pain", "short of breath", "911"})

	matched := engine.MatchedPhrases("I'm short of breath and have chest pain")
	if len(matched) != 2 {
		t.Fatalf("expected 2 matched phrases, got %d: %v", len(matched), matched)
	}
	// Matches come back in phrase-list order, not utterance order.
	if matched[0] != "chest pain" || matched[1] != "short of breath" {
		t.Errorf("unexpected match order: %v", matched)
	}
}

func TestEngineNormalizesPhrases(t *testing.T) {
	engine := NewEngine([]string{"  Chest Pain  ", "", "   "})
	if engine.PhraseCount() != 1 {
		t.Fatalf("expected 1 phrase after normalization, got %d", engine.PhraseCount())
	}
	if !engine.MatchesHardStop("mild chest pain tonight") {
		t.Error("normalized phrase should still match")
	}
}
