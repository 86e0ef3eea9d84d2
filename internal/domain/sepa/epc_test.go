package sepa

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	t.Run("golden payload", func(t *testing.T) {
		p := Payload{
			Name:    "Müller Bürobedarf GmbH",
			IBAN:    "DE89 3704 0044 0532 0130 00",
			BIC:     "cobadeffxxx",
			Amount:  58.30,
			Purpose: "RE-202608001",
		}

		got, err := p.Encode()
		require.NoError(t, err)

		want := strings.Join([]string{
			"BCD",
			"002",
			"1",
			"SCT",
			"COBADEFFXXX",
			"Mueller Buerobedarf GmbH",
			"DE89370400440532013000",
			"EUR58.30",
			"",
			"RE-202608001",
		}, "\n")
		assert.Equal(t, want, got)
	})

	t.Run("BIC may be empty", func(t *testing.T) {
		p := Payload{Name: "Test", IBAN: "DE02120300000000202051", Amount: 1}
		got, err := p.Encode()
		require.NoError(t, err)
		lines := strings.Split(got, "\n")
		require.Len(t, lines, 10)
		assert.Empty(t, lines[4])
	})

	t.Run("amount always carries two decimals", func(t *testing.T) {
		p := Payload{Name: "Test", IBAN: "DE02120300000000202051", Amount: 100}
		got, err := p.Encode()
		require.NoError(t, err)
		assert.Contains(t, got, "EUR100.00")
	})

	t.Run("missing name or IBAN fails", func(t *testing.T) {
		_, err := Payload{IBAN: "DE02120300000000202051", Amount: 1}.Encode()
		assert.Error(t, err)
		_, err = Payload{Name: "Test", Amount: 1}.Encode()
		assert.Error(t, err)

		// A name that transliterates to nothing counts as missing.
		_, err = Payload{Name: "☃☃☃", IBAN: "DE02120300000000202051", Amount: 1}.Encode()
		assert.Error(t, err)
	})
}

func TestTransliterate(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Müller", "Mueller"},
		{"GRÜN & FÖRM", "GRUeN  FOeRM"},
		{"Straße 12", "Strasse 12"},
		{"Ärzte/Öl-Handel", "Aerzte/Oel-Handel"},
		{"plain ASCII, kept. -/", "plain ASCII, kept. -/"},
		// Accented characters outside the umlaut map are stripped.
		{"émile çédille", "mile dille"},
		{"  padded  ", "padded"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Transliterate(tc.in), "Transliterate(%q)", tc.in)
	}
}
