package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"off", true, false},
		{"", true, true},
		{"maybe", true, true},
		{"maybe", false, false},
	}
	for _, tc := range cases {
		t.Setenv("CARELINK_TEST_BOOL", tc.value)
		if got := ParseBoolEnv("CARELINK_TEST_BOOL", tc.def); got != tc.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tc.value, tc.def, got, tc.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("CARELINK_TEST_DUR", "45s")
	if got := ParseDurationEnv("CARELINK_TEST_DUR", time.Minute); got != 45*time.Second {
		t.Errorf("got %v, want 45s", got)
	}
	t.Setenv("CARELINK_TEST_DUR", "bogus")
	if got := ParseDurationEnv("CARELINK_TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("invalid value did not fall back: %v", got)
	}
	t.Setenv("CARELINK_TEST_DUR", "")
	if got := ParseDurationEnv("CARELINK_TEST_DUR", 2*time.Minute); got != 2*time.Minute {
		t.Errorf("empty value did not fall back: %v", got)
	}
}
