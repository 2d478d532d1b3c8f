package mood

import "strings"

// MoodKeywords drives the offline classifier. Keys follow Moods order.
var MoodKeywords = map[Mood][]string{
	Happy:    {"happy", "good", "great", "excited", "grateful", "proud", "hopeful"},
	Calm:     {"okay", "fine", "calm", "neutral", "alright", "chillin"},
	Sad:      {"sad", "down", "lonely", "tired", "upset", "depressed", "cry"},
	Stressed: {"stressed", "anxious", "overwhelmed", "panic", "angry", "worried", "nervous"},
}

var empathyReplies = map[Mood]string{
	Happy:    "Love that energy. One tiny win you’re excited about today?",
	Calm:     "Steady is good. One gentle act of care?",
	Sad:      "That sounds heavy. Your feelings make sense. Small steps count.",
	Stressed: "You’ve carried a lot. Let’s breathe together for a moment.",
}

// ClassifyLocal scores text against MoodKeywords and returns the best bucket.
// Only used when the service cannot be reached; it never signals risk.
func ClassifyLocal(text string) Mood {
	lower := strings.ToLower(text)
	best, bestScore := Calm, 0
	for _, m := range Moods {
		score := 0
		for _, kw := range MoodKeywords[m] {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		// strict > keeps the earlier bucket on ties
		if score > bestScore {
			best, bestScore = m, score
		}
	}
	return best
}

// Empathy returns the canned local reply for m.
func Empathy(m Mood) string {
	if r, ok := empathyReplies[m]; ok {
		return r
	}
	return empathyReplies[Calm]
}

// FallbackOutcome builds the offline outcome for text.
func FallbackOutcome(text string) Outcome {
	m := ClassifyLocal(text)
	return Outcome{
		Mood:    m,
		Risk:    false,
		Reply:   Empathy(m) + " Try a 60-second breath?",
		Actions: defaultActions(),
	}
}
