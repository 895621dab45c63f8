package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.BrazilianPortuguese

	message.SetString(lang, "notification.generic.title", "Notificação")
	message.SetString(lang, "notification.generic.body", "Você tem uma nova notificação.")
	message.SetString(lang, "notification.defend_call.title", "%s está sob ataque")
	message.SetString(lang, "notification.defend_call.body", "A facção %s está atacando %s. Defenda antes de %s.")
	message.SetString(lang, "notification.attack_launched.title", "Ataque a %s iniciado")
	message.SetString(lang, "notification.attack_launched.body", "A facção %s está invadindo %s. A batalha termina em %s.")
}
