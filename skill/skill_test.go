package skill

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const answerManifest = `---
name: answer
description: Answer the question using the supplied context.
model: claude-sonnet-4
system: You are a precise assistant.
---

Answer the following question.

Question: {{.userPrompt}}
{{- if .context}}
Context: {{.context}}
{{- end}}
`

func writeSkill(t *testing.T, root, dir, manifest string) string {
	t.Helper()
	path := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, skillFile), []byte(manifest), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	dir := writeSkill(t, t.TempDir(), "answer", answerManifest)

	sk, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "answer", sk.Name)
	assert.Equal(t, "Answer the question using the supplied context.", sk.Description)
	assert.Equal(t, "claude-sonnet-4", sk.Model)
	assert.Equal(t, "You are a precise assistant.", sk.System)
	assert.Equal(t, dir, sk.Dir)
	assert.Contains(t, sk.Template, "Question: {{.userPrompt}}")
}

func TestLoad_NoFrontmatterFallsBackToDirName(t *testing.T) {
	dir := writeSkill(t, t.TempDir(), "plain", "Just answer: {{.userPrompt}}\n")

	sk, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "plain", sk.Name)
	assert.Empty(t, sk.Model)
	assert.Equal(t, "Just answer: {{.userPrompt}}", sk.Template)
}

func TestLoad_UnterminatedFrontmatter(t *testing.T) {
	dir := writeSkill(t, t.TempDir(), "broken", "---\nname: broken\nno terminator")

	_, err := Load(dir)
	assert.ErrorContains(t, err, "unterminated frontmatter")
}

func TestRender(t *testing.T) {
	dir := writeSkill(t, t.TempDir(), "answer", answerManifest)
	sk, err := Load(dir)
	require.NoError(t, err)

	t.Run("with context", func(t *testing.T) {
		prompt, err := sk.Render("What is Tricare?", "Tricare is a health program.")
		require.NoError(t, err)
		assert.Contains(t, prompt, "Question: What is Tricare?")
		assert.Contains(t, prompt, "Context: Tricare is a health program.")
	})

	t.Run("without context", func(t *testing.T) {
		prompt, err := sk.Render("What is Tricare?", "")
		require.NoError(t, err)
		assert.Contains(t, prompt, "Question: What is Tricare?")
		assert.NotContains(t, prompt, "Context:")
	})
}

func TestLoadDir(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "answer", answerManifest)
	writeSkill(t, root, "plain", "Just answer: {{.userPrompt}}\n")
	// directories without a manifest are skipped
	require.NoError(t, os.MkdirAll(filepath.Join(root, "notes"), 0o755))

	reg, err := LoadDir(root)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"answer", "plain"}, reg.Names())

	sk, err := reg.Resolve("answer")
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4", sk.Model)
}

func TestLoadDir_DuplicateName(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "first", "---\nname: same\n---\n\nbody\n")
	writeSkill(t, root, "second", "---\nname: same\n---\n\nbody\n")

	_, err := LoadDir(root)
	assert.ErrorContains(t, err, `duplicate skill name "same"`)
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "answer", answerManifest)

	reg, err := LoadDir(root)
	require.NoError(t, err)

	_, err = reg.Resolve("missing")
	require.Error(t, err)
	assert.ErrorContains(t, err, "available: answer")
}
