// Package i18n selects the message printer for CLI output from the locale
// environment.
package i18n

import (
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultLang is the fallback language
var DefaultLang = language.English

// SupportedLangs are the languages we support
var SupportedLangs = []language.Tag{
	language.English,
	language.German,
}

var matcher = language.NewMatcher(SupportedLangs)

// Report headings are keyed by their English text.
func init() {
	de := language.German
	_ = message.SetString(de, "Zone Summary", "Zonenübersicht")
	_ = message.SetString(de, "Reconciliation Results", "Abgleichsergebnisse")
	_ = message.SetString(de, "Current Configuration", "Aktuelle Konfiguration")
	_ = message.SetString(de, "%d zones, %d enabled, %d disabled, %d manual", "%d Zonen, %d aktiv, %d deaktiviert, %d manuell")
	_ = message.SetString(de, "%d errors", "%d Fehler")
	_ = message.SetString(de, "No changes.", "Keine Änderungen.")
	_ = message.SetString(de, "Dry run: nothing was written.", "Testlauf: nichts wurde geschrieben.")
}

// MatchLanguage returns the best matching language for an Accept-Language
// style list such as "de-DE,de;q=0.9".
func MatchLanguage(accept string) language.Tag {
	tags, _, _ := language.ParseAcceptLanguage(accept)
	tag, _, _ := matcher.Match(tags...)
	return tag
}

// NewPrinter returns a message printer for the given language
func NewPrinter(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag)
}

// NewCLIPrinter returns a printer for the system's locale (from env vars)
func NewCLIPrinter() *message.Printer {
	return NewPrinter(LocaleFromEnv(os.Getenv))
}

// LocaleFromEnv resolves LC_ALL, then LANG, to a supported language.
func LocaleFromEnv(getenv func(string) string) language.Tag {
	lang := getenv("LC_ALL")
	if lang == "" {
		lang = getenv("LANG")
	}
	if lang == "" || lang == "C" || lang == "POSIX" {
		return DefaultLang
	}

	// Strip encoding and modifier, e.g. de_DE.UTF-8@euro.
	if i := strings.IndexAny(lang, ".@"); i != -1 {
		lang = lang[:i]
	}
	lang = strings.ReplaceAll(lang, "_", "-")

	tag, err := language.Parse(lang)
	if err != nil {
		return DefaultLang
	}
	// Map "de-DE" onto the supported "de".
	matched, _, _ := matcher.Match(tag)
	base, _ := matched.Base()
	return language.Make(base.String())
}
