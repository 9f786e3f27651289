package page

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractText(t *testing.T) {
	t.Parallel()

	const markup = `<html><head>
		<style>body { color: red; }</style>
		<script>var code = "SEDA-SCRIPTED";</script>
	</head><body>
		<h1>About  the artist</h1>
		<p>Claim code: SEDA-AB12CD34</p>
	</body></html>`

	text, err := ExtractText(markup)
	require.NoError(t, err)
	require.Equal(t, "About the artist Claim code: SEDA-AB12CD34", text)
	require.NotContains(t, text, "SEDA-SCRIPTED")
}

func TestContainsCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		haystack string
		needle   string
		want     bool
	}{
		{"present", "profile has SEDA-AB12CD34 embedded", "SEDA-AB12CD34", true},
		{"absent", "nothing to see here", "SEDA-AB12CD34", false},
		{"empty needle never matches", "any content at all", "", false},
		{"whitespace needle never matches", "any content at all", "   \t", false},
		{"case sensitive", "seda-ab12cd34", "SEDA-AB12CD34", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, ContainsCode(tc.haystack, tc.needle))
		})
	}
}
