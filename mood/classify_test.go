package mood

import (
	"strings"
	"testing"
)

func TestDetectCrisis_CaseInsensitiveSubstring(t *testing.T) {
	t.Parallel()

	hits := []string{
		"i want to die",
		"Honestly I WANT TO DIE tonight",
		"feeling hopeless lately",
		"I don’t want to live like this",
		"thinking about Self-Harm",
	}
	for _, in := range hits {
		if !DetectCrisis(in) {
			t.Fatalf("DetectCrisis(%q)=false", in)
		}
	}
	for _, in := range []string{"I am so happy today", "a bit tired", ""} {
		if DetectCrisis(in) {
			t.Fatalf("DetectCrisis(%q)=true", in)
		}
	}
}

func TestCrisisOutcome(t *testing.T) {
	t.Parallel()

	out := CrisisOutcome()
	if out.Mood != Sad || !out.Risk || out.Reply != CrisisMessage {
		t.Fatalf("out=%+v", out)
	}
}

func TestClassifyLocal(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want Mood
	}{
		{"I feel anxious and overwhelmed", Stressed},
		{"SO HAPPY and grateful", Happy},
		{"lonely and sad", Sad},
		{"nothing matches here", Calm},
		// one hit each: declaration order wins
		{"happy but sad", Happy},
		{"sad but stressed", Sad},
		{"fine and worried", Calm},
	}
	for _, tc := range cases {
		if got := ClassifyLocal(tc.in); got != tc.want {
			t.Fatalf("ClassifyLocal(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFallbackOutcome_NeverRisk(t *testing.T) {
	t.Parallel()

	out := FallbackOutcome("I feel anxious and overwhelmed")
	if out.Mood != Stressed || out.Risk {
		t.Fatalf("out=%+v", out)
	}
	if !strings.HasPrefix(out.Reply, Empathy(Stressed)) || !strings.HasSuffix(out.Reply, "Try a 60-second breath?") {
		t.Fatalf("Reply=%q", out.Reply)
	}
}

func TestParseMood(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Mood{
		"happy":    Happy,
		" Sad ":    Sad,
		"STRESSED": Stressed,
		"angry":    Calm,
		"":         Calm,
	} {
		if got := ParseMood(in); got != want {
			t.Fatalf("ParseMood(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestPersonaTone(t *testing.T) {
	t.Parallel()

	if got := PersonaTone("Lumi"); got != "Lumi is a dog: loyal and uplifting." {
		t.Fatalf("lumi=%q", got)
	}
	if got := PersonaTone(""); got != PersonaTone("nova") {
		t.Fatalf("default=%q", got)
	}
	if got := PersonaTone("dragon"); got != GenericPersonaTone {
		t.Fatalf("unknown=%q", got)
	}
	p := SystemPrompt(PersonaTone("bub"))
	if !strings.Contains(p, "Bub is a bear") || !strings.Contains(p, "THIRD PERSON") {
		t.Fatalf("prompt missing persona or role contract: %q", p)
	}
}

func TestRequestVariant(t *testing.T) {
	t.Parallel()

	if got := (Request{Text: "x"}).Variant(); got != DefaultPetVariant {
		t.Fatalf("Variant=%q", got)
	}
	if got := (Request{Text: "x", PetVariant: " LUMI "}).Variant(); got != "lumi" {
		t.Fatalf("Variant=%q", got)
	}
}
