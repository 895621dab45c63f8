// Package render turns stored battle notifications into localized copy.
package render

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/louisbranch/conquest.space/internal/services/notifications/domain"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	defaultGenericTitle = "Notification"
	defaultGenericBody  = "You have a new notification."
)

var supported = []language.Tag{language.English, language.BrazilianPortuguese}

var matcher = language.NewMatcher(supported)

// Input is one stored notification to render.
type Input struct {
	MessageType string
	PayloadJSON string
}

// Output is localized copy for one notification.
type Output struct {
	Title    string
	BodyText string
}

// Localizer is the minimal message-printer contract required by the renderer.
type Localizer interface {
	Sprintf(key message.Reference, args ...any) string
}

// PrinterFor returns a printer for the best supported match of an
// Accept-Language header value. Unparseable input falls back to English.
func PrinterFor(acceptLanguage string) *message.Printer {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return message.NewPrinter(language.English)
	}
	_, index, _ := matcher.Match(tags...)
	return message.NewPrinter(supported[index])
}

type battlePayload struct {
	RegionKey         string    `json:"region_key"`
	AttackerFactionID string    `json:"attacker_faction_id"`
	DefenderFactionID string    `json:"defender_faction_id"`
	EndsAt            time.Time `json:"ends_at"`
}

// Render returns localized copy for one notification.
func Render(loc Localizer, input Input) Output {
	switch domain.NormalizeMessageType(input.MessageType) {
	case domain.MessageTypeDefendCall:
		return renderBattle(loc, input, "notification.defend_call")
	case domain.MessageTypeAttackLaunched:
		return renderBattle(loc, input, "notification.attack_launched")
	default:
		return genericOutput(loc)
	}
}

func renderBattle(loc Localizer, input Input, prefix string) Output {
	var payload battlePayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(input.PayloadJSON)), &payload); err != nil || payload.RegionKey == "" {
		return genericOutput(loc)
	}

	titleKey := prefix + ".title"
	bodyKey := prefix + ".body"
	title := localize(loc, titleKey, payload.RegionKey)
	body := localize(loc, bodyKey, payload.AttackerFactionID, payload.RegionKey, payload.EndsAt.UTC().Format(time.RFC3339))
	if title == titleKey || body == bodyKey {
		return genericOutput(loc)
	}
	return Output{Title: title, BodyText: body}
}

func genericOutput(loc Localizer) Output {
	return Output{
		Title:    localizeWithFallback(loc, "notification.generic.title", defaultGenericTitle),
		BodyText: localizeWithFallback(loc, "notification.generic.body", defaultGenericBody),
	}
}

func localize(loc Localizer, key string, args ...any) string {
	if loc == nil {
		return key
	}
	return loc.Sprintf(key, args...)
}

func localizeWithFallback(loc Localizer, key string, fallback string) string {
	value := strings.TrimSpace(localize(loc, key))
	if value == "" || value == key {
		return fallback
	}
	return value
}
