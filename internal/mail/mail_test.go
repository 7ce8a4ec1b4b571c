package mail

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplate(t *testing.T, dir, locale, name, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, locale), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, locale, name+".html"), []byte(body), 0o644))
}

func TestRenderLocalized(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "en", "hello", "Hello {{.Name}}")
	writeTemplate(t, dir, "de", "hello", "Hallo {{.Name}}")

	out, err := Render(dir, "hello", "de", map[string]any{"Name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hallo Ada", out)
}

func TestRenderFallsBackToDefaultLocale(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "en", "hello", "Hello {{.Name}}")

	out, err := Render(dir, "hello", "fr", map[string]any{"Name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada", out)
}

func TestRenderEscapesVariables(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "en", "hello", "<p>{{.Name}}</p>")

	out, err := Render(dir, "hello", "", map[string]any{"Name": "<script>"})
	require.NoError(t, err)
	assert.Equal(t, "<p>&lt;script&gt;</p>", out)
}

func TestRenderMissingTemplate(t *testing.T) {
	_, err := Render(t.TempDir(), "nope", "en", nil)
	assert.Error(t, err)
}

func TestShippedTemplatesRender(t *testing.T) {
	for _, locale := range []string{"en", "de"} {
		out, err := Render("../../templates/emails", "forgotten-password", locale, map[string]any{
			"FirstName": "Ada",
			"Token":     "abc123",
		})
		require.NoError(t, err)
		assert.Contains(t, out, "abc123")
	}
}
