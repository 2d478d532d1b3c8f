package mood

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/theimaginaryfoundation/mentapet/mood/fileutils"
)

// DecodeOr runs decode on raw and returns def when it fails.
func DecodeOr[T any](raw []byte, def T, decode func([]byte) (T, error)) T {
	v, err := decode(raw)
	if err != nil {
		return def
	}
	return v
}

type looseOutcome struct {
	Mood    json.RawMessage `json:"mood"`
	Risk    json.RawMessage `json:"risk"`
	Reply   json.RawMessage `json:"reply"`
	Actions json.RawMessage `json:"actions"`
}

// DecodeClassification parses classifier output into a Classification.
// The object may be wrapped in extra model text. Individual fields are
// defaulted: unknown mood becomes calm, missing risk is false, and a missing
// or non-array actions field becomes the two-item default.
func DecodeClassification(raw []byte) (Classification, error) {
	var l looseOutcome
	if err := fileutils.DecodeModelJSON(string(raw), &l); err != nil {
		return Classification{}, err
	}
	return l.classification(), nil
}

// DecodeDocument parses the non-streaming response shape.
func DecodeDocument(raw []byte) (Outcome, error) {
	var l looseOutcome
	if err := fileutils.DecodeModelJSON(string(raw), &l); err != nil {
		return Outcome{}, err
	}
	// the reply is kept byte for byte so it matches the streamed content
	out := Outcome{Reply: decodeString(l.Reply)}
	if out.Reply == "" {
		out.Reply = Empathy(Calm)
	}
	out.Apply(l.classification())
	return out, nil
}

// applyMeta copies the meta fields present in l onto out.
func (l looseOutcome) applyMeta(out *Outcome) {
	if l.Mood != nil {
		out.Mood = ParseMood(decodeString(l.Mood))
	}
	if l.Risk != nil {
		out.Risk = decodeBool(l.Risk)
	}
	if l.Actions != nil {
		out.Actions = decodeActions(l.Actions)
	}
}

func (l looseOutcome) hasMeta() bool {
	return l.Mood != nil || l.Risk != nil || l.Actions != nil
}

func (l looseOutcome) classification() Classification {
	return Classification{
		Mood:    ParseMood(decodeString(l.Mood)),
		Risk:    decodeBool(l.Risk),
		Actions: decodeActions(l.Actions),
	}
}

func decodeString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func decodeBool(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		b, _ := strconv.ParseBool(strings.TrimSpace(s))
		return b
	}
	return false
}

func decodeActions(raw json.RawMessage) []string {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil || items == nil {
		return defaultActions()
	}
	out := make([]string, 0, min(len(items), MaxActions))
	for _, it := range items {
		if len(out) == MaxActions {
			break
		}
		var s string
		if json.Unmarshal(it, &s) != nil {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
