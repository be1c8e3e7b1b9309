package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command in an isolated directory with no config.
func run(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", home)

	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = execute(cmd)
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestStdinToStdout(t *testing.T) {
	out, _, err := run(t, "* item one\n* item two\n")
	require.NoError(t, err)
	assert.Equal(t, "- item one\n- item two\n", out)
}

func TestStdinRejectsWrite(t *testing.T) {
	_, stderr, err := run(t, "* a\n", "-w")
	require.Error(t, err)
	assert.Contains(t, stderr, "Error: --write cannot be used")
}

func TestFileToStdout(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "doc.md", "Title\n=====\n\n```markdown\n# H\n\n* a\n```\n")

	out, _, err := run(t, "", path)
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\n```markdown\n# H\n\n- a\n```\n", out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "* a", "file must not change without --write")
}

func TestWriteBack(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "doc.md", "+ a\n")

	out, _, err := run(t, "", "--write", path)
	require.NoError(t, err)
	assert.Equal(t, "Written: "+path+"\n", out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "- a\n", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileNotFound(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.md")
	_, stderr, err := run(t, "", missing)
	require.Error(t, err)
	assert.Equal(t, "Error: File not found: "+missing+"\n", stderr)
}

func TestPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	path := writeFile(t, t.TempDir(), "locked.md", "* a\n")
	require.NoError(t, os.Chmod(path, 0o000))

	_, stderr, err := run(t, "", path)
	require.Error(t, err)
	assert.Contains(t, stderr, "Error: Permission denied: "+path)
}

func TestDirectoryCheck(t *testing.T) {
	dir := t.TempDir()
	clean := writeFile(t, dir, "clean.md", "- ok\n")
	dirty := writeFile(t, dir, "sub/dirty.markdown", "* not ok\n")
	writeFile(t, dir, "notes.txt", "* ignored\n")

	out, stderr, err := run(t, "", "--check", dir)
	require.Error(t, err)
	assert.Contains(t, stderr, "1 file(s) would be reformatted")
	assert.Contains(t, out, dirty)
	assert.NotContains(t, out, clean)
	assert.NotContains(t, out, "notes.txt")

	data, err := os.ReadFile(dirty)
	require.NoError(t, err)
	assert.Equal(t, "* not ok\n", string(data), "--check must not write")
}

func TestHelpDoesNotProcess(t *testing.T) {
	out, _, err := run(t, "* a\n", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.NotContains(t, out, "- a")
}

func TestNestedFailureLoggedToStderr(t *testing.T) {
	doc := "```md\n" + strings.Repeat(">", 100) + " x\n```\n"
	out, stderr, err := run(t, doc)
	require.NoError(t, err)
	assert.Equal(t, doc, out)
	assert.Contains(t, stderr, "nested markdown left unformatted")
}

func TestInvalidConfigFlag(t *testing.T) {
	_, stderr, err := run(t, "", "--log-level", "loud")
	require.Error(t, err)
	assert.Contains(t, stderr, "log_level")
}

func TestTopLevelFailure(t *testing.T) {
	_, stderr, err := run(t, "bad \xff\n")
	require.Error(t, err)
	assert.Contains(t, stderr, "Error: parse document: input is not valid UTF-8")
}
