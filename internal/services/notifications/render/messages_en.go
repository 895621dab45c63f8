package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.English

	message.SetString(lang, "notification.generic.title", defaultGenericTitle)
	message.SetString(lang, "notification.generic.body", defaultGenericBody)
	message.SetString(lang, "notification.defend_call.title", "%s is under attack")
	message.SetString(lang, "notification.defend_call.body", "Faction %s is attacking %s. Defend it before %s.")
	message.SetString(lang, "notification.attack_launched.title", "Attack on %s launched")
	message.SetString(lang, "notification.attack_launched.body", "Faction %s is assaulting %s. The battle ends at %s.")
}
