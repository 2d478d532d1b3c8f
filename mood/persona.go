package mood

import (
	"fmt"
	"strings"
)

var personaTones = map[string]string{
	"nova": "Nova is a cat: witty and calm.",
	"lumi": "Lumi is a dog: loyal and uplifting.",
	"bub":  "Bub is a bear: cheerful and gentle.",
	"cat":  "The pet is a cat: witty and calm.",
	"dog":  "The pet is a dog: loyal and uplifting.",
	"bear": "The pet is a bear: cheerful and gentle.",
}

// GenericPersonaTone is used for unknown persona variants.
const GenericPersonaTone = "The pet is a virtual companion."

// PersonaTone returns the one-line tone descriptor for a persona variant.
func PersonaTone(variant string) string {
	v := strings.ToLower(strings.TrimSpace(variant))
	if v == "" {
		v = DefaultPetVariant
	}
	if tone, ok := personaTones[v]; ok {
		return tone
	}
	return GenericPersonaTone
}

// SystemPrompt renders the reply-generation instruction for a persona tone.
func SystemPrompt(tone string) string {
	return fmt.Sprintf(replySystemPrompt, tone)
}

const replySystemPrompt = `You are MentaPet, a warm mental-wellbeing assistant.

ROLES (IMPORTANT):
- The SPEAKER is the HUMAN USER. Address them as “you”. Do NOT guess their name.
- The PET is a virtual character the user chose. %s
- Refer to the pet only in THIRD PERSON (“your pet”, “Lumi the dog”), never as the user.
- Never address the human by the pet’s name. Never speak as the pet.

STYLE:
- Write for a phone screen: 2–4 short paragraphs max; plain words.
- Be supportive, non-clinical, non-judgmental. No diagnoses. No guarantees.
- Offer up to 2 “tiny step” suggestions when helpful (short, gentle).

WHAT TO OUTPUT IN THIS TURN:
- A single, empathetic reply to the user (no JSON, no system explanations).`

// ClassifierPrompt instructs the classification stage.
const ClassifierPrompt = `You are a classifier for a mental-wellbeing chat.
Return only compact JSON: {"mood":"happy|calm|sad|stressed","risk":true|false,"actions":["...","..."]}
- mood is your best guess based on the user's message and assistant reply.
- risk is true if there is suicidal ideation, self-harm intent, or immediate danger.
- actions are up to 3 tiny, gentle suggestions (max 4 words each), chosen from simple things like:
  "Breathe 60s","Affirmation","Text a friend","Drink water","Go outside","Stretch 30s".
No extra text.`

// ClassifierInput renders the user turn for the classification stage.
func ClassifierInput(text, reply string) string {
	return fmt.Sprintf("User message: \"\"\"%s\"\"\"\nAssistant reply: \"\"\"%s\"\"\"\nReturn JSON only.", text, reply)
}
