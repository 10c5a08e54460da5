package coverage

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/envmatrix/internal/model"
)

// gcsaCoverageConfig mirrors the [coverage:report] section of the gcsa tox.ini.
func gcsaCoverageConfig() model.CoverageConfig {
	return model.CoverageConfig{
		ExcludeLines: []string{
			"pragma: no cover",
			"def __repr__",
			"raise NotImplementedError",
		},
		Omit: []string{"*/__init__.py"},
	}
}

func newExcluder(t *testing.T) *Excluder {
	t.Helper()
	e, err := NewExcluder(gcsaCoverageConfig(), "")
	require.NoError(t, err)
	return e
}

// TestIsLineExcluded_Pragma checks that the marker excludes a line wherever
// it appears, regardless of the surrounding code.
func TestIsLineExcluded_Pragma(t *testing.T) {
	e := newExcluder(t)

	for _, line := range []string{
		"    return self._cache  # pragma: no cover",
		"if DEBUG:  # pragma: no cover",
		"# pragma: no cover",
		"x = 'pragma: no cover'",
	} {
		assert.True(t, e.IsLineExcluded(line), line)
	}

	assert.False(t, e.IsLineExcluded("return self._cache"))
	assert.False(t, e.IsLineExcluded("# pragma: cover"))
	assert.Equal(t, "def __repr__", e.ExcludedBy("    def __repr__(self):"))
}

// TestIsFileOmitted_InitFiles checks that any __init__.py is omitted,
// whatever its depth.
func TestIsFileOmitted_InitFiles(t *testing.T) {
	e := newExcluder(t)

	assert.True(t, e.IsFileOmitted("gcsa/__init__.py"))
	assert.True(t, e.IsFileOmitted("gcsa/serializers/__init__.py"))
	assert.False(t, e.IsFileOmitted("gcsa/event.py"))
	assert.False(t, e.IsFileOmitted("gcsa/__init__.pyc"))
}

// TestIsFileOmitted_AbsolutePath relativizes paths under the root.
func TestIsFileOmitted_AbsolutePath(t *testing.T) {
	root := t.TempDir()
	e, err := NewExcluder(model.CoverageConfig{Omit: []string{"gcsa/_resources/*"}}, root)
	require.NoError(t, err)

	assert.True(t, e.IsFileOmitted(filepath.Join(root, "gcsa", "_resources", "colors.py")))
	assert.False(t, e.IsFileOmitted(filepath.Join(root, "gcsa", "event.py")))
}

// TestAccount classifies lines of a small module.
func TestAccount(t *testing.T) {
	e := newExcluder(t)
	src := strings.Join([]string{
		"class Event:",
		"    # attributes",
		"",
		"    def __repr__(self):",
		"        return '<Event>'",
		"    def debug(self):  # pragma: no cover",
		"        raise NotImplementedError",
	}, "\n")

	acc, err := e.Account("gcsa/event.py", strings.NewReader(src))
	require.NoError(t, err)

	assert.False(t, acc.Omitted)
	assert.Equal(t, 7, acc.Lines)
	assert.Equal(t, 2, acc.Blank)
	assert.Equal(t, 3, acc.Excluded)
	assert.Equal(t, 2, acc.Counted)
	assert.Equal(t, []int{4, 6, 7}, acc.ExcludedLines)
}

// TestAccount_OmittedFile ignores the content of omitted files.
func TestAccount_OmittedFile(t *testing.T) {
	e := newExcluder(t)

	acc, err := e.Account("gcsa/__init__.py", strings.NewReader("from .event import Event\n"))
	require.NoError(t, err)
	assert.True(t, acc.Omitted)
	assert.Zero(t, acc.Lines)
	assert.Zero(t, acc.Counted)
}

// TestIsLineExcluded_LiteralMarkers: markers match as written, so a
// regex-style marker does not match the line it would describe.
func TestIsLineExcluded_LiteralMarkers(t *testing.T) {
	literal, err := NewExcluder(model.CoverageConfig{ExcludeLines: []string{`if __name__ == "__main__":`}}, "")
	require.NoError(t, err)
	assert.True(t, literal.IsLineExcluded(`if __name__ == "__main__":`))

	regexStyle, err := NewExcluder(model.CoverageConfig{ExcludeLines: []string{"if __name__ == .__main__.:"}}, "")
	require.NoError(t, err)
	assert.False(t, regexStyle.IsLineExcluded(`if __name__ == "__main__":`))
}
