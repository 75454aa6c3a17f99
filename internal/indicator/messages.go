package indicator

import (
	"os"
	"strings"

	"github.com/rbright/nexa/internal/config"
)

type messages struct {
	listening  string
	processing string
	errorText  string
}

var catalog = map[string]messages{
	"en": {listening: "Listening…", processing: "Processing…", errorText: "Voice command error"},
	"es": {listening: "Escuchando…", processing: "Procesando…", errorText: "Error del comando de voz"},
	"de": {listening: "Höre zu…", processing: "Verarbeite…", errorText: "Sprachbefehl fehlgeschlagen"},
	"fr": {listening: "À l'écoute…", processing: "Traitement…", errorText: "Erreur de commande vocale"},
}

// messagesFromEnv picks the catalog entry for the POSIX message locale.
func messagesFromEnv() messages {
	return messagesFor(messageLocale(os.Getenv))
}

// messageLocale follows POSIX precedence: LC_ALL, then LC_MESSAGES, then LANG.
func messageLocale(getenv func(string) string) string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if value := strings.TrimSpace(getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

// messagesFor maps a locale such as "de_AT.UTF-8" to its language's
// messages, defaulting to English.
func messagesFor(locale string) messages {
	lang, _, _ := strings.Cut(strings.ToLower(locale), "_")
	lang, _, _ = strings.Cut(lang, ".")
	if m, ok := catalog[lang]; ok {
		return m
	}
	return catalog["en"]
}

// withOverrides applies non-empty indicator.text_* values.
func (m messages) withOverrides(cfg config.IndicatorConfig) messages {
	for _, o := range []struct {
		dst *string
		src string
	}{
		{&m.listening, cfg.TextListening},
		{&m.processing, cfg.TextProcessing},
		{&m.errorText, cfg.TextError},
	} {
		if text := strings.TrimSpace(o.src); text != "" {
			*o.dst = text
		}
	}
	return m
}
