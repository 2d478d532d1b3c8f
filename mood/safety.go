package mood

import "strings"

// CrisisPhrases are matched case-insensitively anywhere in the input.
var CrisisPhrases = []string{
	"suicide",
	"kill myself",
	"end it",
	"i want to die",
	"i wanna die",
	"don't want to live",
	"don’t want to live",
	"self-harm",
	"cut myself",
	"hopeless",
	"worthless",
	"no reason to live",
	"give up",
	"i want to disappear",
}

// CrisisMessage is shown whenever care escalation is triggered.
const CrisisMessage = "I’m really concerned about your safety. You deserve support from a real person."

// DetectCrisis reports whether text contains any crisis phrase.
// It performs no I/O and must run before any network call.
func DetectCrisis(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range CrisisPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// CrisisOutcome is the outcome reported when the pre-filter matches.
func CrisisOutcome() Outcome {
	return Outcome{
		Mood:    Sad,
		Risk:    true,
		Reply:   CrisisMessage,
		Actions: []string{},
	}
}
