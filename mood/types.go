package mood

import "strings"

// Mood is the coarse feeling bucket attached to every analysis.
type Mood string

const (
	Happy    Mood = "happy"
	Calm     Mood = "calm"
	Sad      Mood = "sad"
	Stressed Mood = "stressed"
)

// Moods lists the buckets in declaration order. Tie-breaks follow this order.
var Moods = []Mood{Happy, Calm, Sad, Stressed}

// MaxActions caps the number of suggested actions on any classification.
const MaxActions = 3

// DefaultPetVariant is used when a request names no persona.
const DefaultPetVariant = "nova"

// ParseMood maps an upstream label onto one of the four buckets. Anything
// unrecognized becomes Calm.
func ParseMood(s string) Mood {
	switch m := Mood(strings.ToLower(strings.TrimSpace(s))); m {
	case Happy, Calm, Sad, Stressed:
		return m
	default:
		return Calm
	}
}

// Request is one user submission to the analysis service.
type Request struct {
	Text       string `json:"text"`
	PetVariant string `json:"petVariant,omitempty"`
}

// Variant returns the requested persona, defaulting to nova.
func (r Request) Variant() string {
	v := strings.ToLower(strings.TrimSpace(r.PetVariant))
	if v == "" {
		return DefaultPetVariant
	}
	return v
}

// Classification is the structured summary produced once per completed request.
// It is also the payload of the meta event.
type Classification struct {
	Mood    Mood     `json:"mood"`
	Risk    bool     `json:"risk"`
	Actions []string `json:"actions"`
}

// Outcome aggregates the reply text and its classification. It is also the
// non-streaming document shape.
type Outcome struct {
	Mood    Mood     `json:"mood"`
	Risk    bool     `json:"risk"`
	Reply   string   `json:"reply"`
	Actions []string `json:"actions"`
}

// Apply copies the classification fields onto o.
func (o *Outcome) Apply(c Classification) {
	o.Mood = ParseMood(string(c.Mood))
	o.Risk = c.Risk
	o.Actions = capActions(c.Actions)
}

// SafeDefault is substituted whenever classification is unavailable.
func SafeDefault() Classification {
	return Classification{
		Mood:    Calm,
		Risk:    false,
		Actions: defaultActions(),
	}
}

func defaultActions() []string {
	return []string{"Breathe 60s", "Affirmation"}
}

func capActions(in []string) []string {
	if in == nil {
		return []string{}
	}
	if len(in) > MaxActions {
		in = in[:MaxActions]
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
