package travelmate

import "testing"

func TestKeywordDetector(t *testing.T) {
	d := &KeywordDetector{}

	cases := []struct {
		name string
		text string
		want bool
	}{
		{"plain itinerary", "Day 1: Colosseum at 9am, lunch in Trastevere.", false},
		{"needs auth phrase", "Google Drive authentication is required. Please wait.", true},
		{"sign in mixed case", "You must Sign In to continue.", true},
		{"permission", "I don't have permission to save the file.", true},
		{"credential", "A valid credential is needed for this action.", true},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := d.NeedsAuthorization(tc.text); got != tc.want {
				t.Errorf("NeedsAuthorization(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestKeywordDetectorCustomPhrases(t *testing.T) {
	d := &KeywordDetector{Phrases: []string{"vault locked"}}

	if !d.NeedsAuthorization("The VAULT LOCKED error came back.") {
		t.Error("custom phrase not matched case-insensitively")
	}
	if d.NeedsAuthorization("please authorize me") {
		t.Error("default phrases should not apply when overridden")
	}
}

func TestDetectorFunc(t *testing.T) {
	d := DetectorFunc(func(text string) bool { return text == "x" })
	if !d.NeedsAuthorization("x") || d.NeedsAuthorization("y") {
		t.Error("DetectorFunc did not delegate")
	}
}
