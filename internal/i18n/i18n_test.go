package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestMatchLanguage(t *testing.T) {
	tests := []struct {
		accept   string
		expected language.Tag
	}{
		{"en-US,en;q=0.9", language.English},
		{"de-DE,de;q=0.9", language.German},
		{"fr-FR", language.English}, // Fallback
		{"", language.English},      // Empty
	}

	for _, tt := range tests {
		got := MatchLanguage(tt.accept)
		base, _ := got.Base()
		exp, _ := tt.expected.Base()
		assert.Equal(t, exp, base, "Accept: %s", tt.accept)
	}
}

func TestLocaleFromEnv(t *testing.T) {
	tests := []struct {
		lcAll, lang string
		expected    language.Tag
	}{
		{"", "", language.English},
		{"", "C", language.English},
		{"", "de_DE.UTF-8", language.German},
		{"en_GB.UTF-8", "de_DE.UTF-8", language.English},
		{"", "de_AT@euro", language.German},
		{"", "fr_FR.UTF-8", language.English},
		{"", "not a locale", language.English},
	}
	for _, tt := range tests {
		env := map[string]string{"LC_ALL": tt.lcAll, "LANG": tt.lang}
		got := LocaleFromEnv(func(k string) string { return env[k] })
		assert.Equal(t, tt.expected, got, "LC_ALL=%q LANG=%q", tt.lcAll, tt.lang)
	}
}

func TestPrinterCatalog(t *testing.T) {
	assert.Equal(t, "Zonenübersicht", NewPrinter(language.German).Sprintf("Zone Summary"))
	assert.Equal(t, "Zone Summary", NewPrinter(language.English).Sprintf("Zone Summary"))
	assert.Equal(t, "3 Fehler", NewPrinter(language.German).Sprintf("%d errors", 3))
}
