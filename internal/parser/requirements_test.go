package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/acheong08/sentinel/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decl(name, version string) models.DependencyDeclaration {
	return models.NewDeclaration(name, version)
}

func TestParseRequirements(t *testing.T) {
	decls := ParseRequirements("requests==2.0.0\n# comment\nrequessts\n")

	require.Len(t, decls, 2)
	assert.Equal(t, decl("requests", "2.0.0"), decls[0])
	assert.Equal(t, "requessts", decls[1].Name)
	assert.False(t, decls[1].HasVersion())
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line     string
		expected models.DependencyDeclaration
	}{
		{"flask", decl("flask", "")},
		{"  django  ", decl("django", "")},
		{"numpy==1.26.4", decl("numpy", "1.26.4")},
		{"pandas >= 2.0", decl("pandas", "2.0")},
		{"scipy<=1.11", decl("scipy", "1.11")},
		{"celery~=5.3", decl("celery", "5.3")},
		{"redis>4", decl("redis", "4")},

		// ">=" is listed before ">", so it wins even though ">" also matches
		{"torch>=2.0", decl("torch", "2.0")},

		// list priority, not position: "==" is found although ">" appears first
		{"weird>1==2", decl("weird>1", "2")},

		// the right-hand side is kept raw
		{"uvicorn>=0.20,<1.0", decl("uvicorn", "0.20,<1.0")},

		// malformed lines degrade to name-only
		{"==1.0", decl("==1.0", "")},
		{"requests==", decl("requests", "")},
		{"git+https://github.com/org/repo.git", decl("git+https://github.com/org/repo.git", "")},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			result, ok := ParseLine(tt.line)
			require.True(t, ok)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParseLineSkips(t *testing.T) {
	for _, line := range []string{"", "   ", "\t", "# pinned for CI", "   # indented comment"} {
		_, ok := ParseLine(line)
		assert.False(t, ok, "line %q should be skipped", line)
	}
}

func TestParseRequirementsPreservesOrderAndDuplicates(t *testing.T) {
	content := "b\r\na==1\n\n# x\nb\nc>=2\r\n"
	decls := ParseRequirements(content)

	names := make([]string, len(decls))
	for i, d := range decls {
		names[i] = d.Name
	}
	assert.Equal(t, []string{"b", "a", "b", "c"}, names)
}

func TestParseRequirementsCountsNonCommentLines(t *testing.T) {
	lines := []string{"requests", "", "# c", "flask==2", "  ", "numpy>1", "#", "django"}
	decls := ParseRequirements(strings.Join(lines, "\n"))
	assert.Len(t, decls, 4)
}

func TestReadRequirementsMatchesParse(t *testing.T) {
	content := "requests==2.0.0\n# comment\nrequessts\nflask>=2\n"

	fromReader, err := ReadRequirements(strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, ParseRequirements(content), fromReader)
}

func TestParseRequirementsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, RequirementsFile)
	require.NoError(t, os.WriteFile(path, []byte("fastapi==0.110\npytest\n"), 0o644))

	found, err := FindRequirements(dir)
	require.NoError(t, err)
	assert.Equal(t, path, found)

	decls, err := ParseRequirementsFile(found)
	require.NoError(t, err)
	assert.Equal(t, []models.DependencyDeclaration{decl("fastapi", "0.110"), decl("pytest", "")}, decls)
}

func TestFindRequirementsMissing(t *testing.T) {
	_, err := FindRequirements(t.TempDir())
	assert.Error(t, err)

	_, err = ParseRequirementsFile(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}
