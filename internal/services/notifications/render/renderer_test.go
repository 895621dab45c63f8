package render

import (
	"fmt"
	"testing"

	"github.com/louisbranch/conquest.space/internal/services/notifications/domain"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const defendPayload = `{"battle_id":"b-1","region_key":"north-gate","attacker_faction_id":"red","defender_faction_id":"blue","ends_at":"2026-03-01T14:00:00Z"}`

func TestRenderDefendCallWithRealPrinter(t *testing.T) {
	t.Parallel()

	out := Render(message.NewPrinter(language.English), Input{
		MessageType: domain.MessageTypeDefendCall,
		PayloadJSON: defendPayload,
	})
	if out.Title != "north-gate is under attack" {
		t.Fatalf("title = %q, want %q", out.Title, "north-gate is under attack")
	}
	want := "Faction red is attacking north-gate. Defend it before 2026-03-01T14:00:00Z."
	if out.BodyText != want {
		t.Fatalf("body = %q, want %q", out.BodyText, want)
	}
}

func TestRenderAttackLaunchedPortuguese(t *testing.T) {
	t.Parallel()

	out := Render(PrinterFor("pt-BR,pt;q=0.9,en;q=0.5"), Input{
		MessageType: domain.MessageTypeAttackLaunched,
		PayloadJSON: defendPayload,
	})
	if out.Title != "Ataque a north-gate iniciado" {
		t.Fatalf("title = %q, want portuguese title", out.Title)
	}
}

func TestRenderMalformedPayloadFallsBack(t *testing.T) {
	t.Parallel()

	out := Render(message.NewPrinter(language.English), Input{
		MessageType: domain.MessageTypeDefendCall,
		PayloadJSON: "{",
	})
	if out.Title != defaultGenericTitle || out.BodyText != defaultGenericBody {
		t.Fatalf("output = %+v, want generic fallback", out)
	}
}

func TestRenderUnknownTypeFallsBack(t *testing.T) {
	t.Parallel()

	loc := fakeLocalizer{values: map[string]string{
		"notification.generic.title": "Generic",
		"notification.generic.body":  "Body",
	}}
	out := Render(loc, Input{MessageType: "battle.ended", PayloadJSON: defendPayload})
	if out.Title != "Generic" || out.BodyText != "Body" {
		t.Fatalf("output = %+v, want localized generic copy", out)
	}
}

func TestRenderMissingTranslationFallsBack(t *testing.T) {
	t.Parallel()

	out := Render(fakeLocalizer{values: map[string]string{}}, Input{
		MessageType: domain.MessageTypeDefendCall,
		PayloadJSON: defendPayload,
	})
	if out.Title != defaultGenericTitle {
		t.Fatalf("title = %q, want generic default", out.Title)
	}
}

func TestRenderWithNilLocalizerReturnsDefaults(t *testing.T) {
	t.Parallel()

	out := Render(nil, Input{MessageType: domain.MessageTypeDefendCall, PayloadJSON: defendPayload})
	if out.Title != defaultGenericTitle || out.BodyText != defaultGenericBody {
		t.Fatalf("output = %+v, want defaults", out)
	}
}

func TestPrinterForFallsBackToEnglish(t *testing.T) {
	t.Parallel()

	for _, header := range []string{"", "klingon;q=bad", "fr-FR"} {
		out := Render(PrinterFor(header), Input{MessageType: domain.MessageTypeDefendCall, PayloadJSON: defendPayload})
		if out.Title != "north-gate is under attack" {
			t.Fatalf("header %q: title = %q, want english", header, out.Title)
		}
	}
}

type fakeLocalizer struct {
	values map[string]string
}

func (f fakeLocalizer) Sprintf(key message.Reference, args ...any) string {
	keyString, _ := key.(string)
	value, ok := f.values[keyString]
	if !ok {
		return keyString
	}
	return fmt.Sprintf(value, args...)
}
