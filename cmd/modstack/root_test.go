package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/modstack/pkg/modstack/config"
	"github.com/jamesainslie/modstack/pkg/modstack/manifest"
	"github.com/jamesainslie/modstack/pkg/modstack/output"
	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

func TestFailureMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: "boom",
		},
		{
			name: "path error",
			err:  types.NewPathError("merge", "Actor/x.frec", types.ErrSchemaMismatch, nil),
			want: "operation failed with Actor/x.frec: schema mismatch",
		},
		{
			name: "innermost path wins",
			err: fmt.Errorf("apply: %w", types.NewPathError("merge", "Pack/Title.pack", types.ErrParse,
				types.NewPathError("merge", "Pack/Title.pack//x.frec", types.ErrParse, errors.New("truncated")))),
			want: "operation failed with Pack/Title.pack//x.frec: parse error: truncated",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, failureMessage(tt.err))
		})
	}
}

func TestParsePackOptions(t *testing.T) {
	opts, err := parsePackOptions([]string{"hard=./hard", " music = ./music "})
	require.NoError(t, err)
	assert.Equal(t, []packOption{{"hard", "./hard"}, {"music", "./music"}}, opts)

	for _, bad := range []string{"hard", "=dir", "hard="} {
		_, err := parsePackOptions([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestFormatterFor(t *testing.T) {
	f, err := formatterFor("json")
	require.NoError(t, err)
	assert.IsType(t, &output.JSONFormatter{}, f)

	templateStr = "{{.Platform}}"
	t.Cleanup(func() { templateStr = "" })
	f, err = formatterFor("template")
	require.NoError(t, err)
	assert.IsType(t, &output.TemplateFormatter{}, f)

	_, err = formatterFor("xml")
	assert.Error(t, err)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcdefg...", truncateString("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", truncateString("abcdef", 2))
}

func TestUpdatePending(t *testing.T) {
	out := t.TempDir()
	cfg = &config.Config{Platform: "wiiu", Output: out}
	t.Cleanup(func() { cfg = nil })

	require.NoError(t, updatePending([]string{"content/Actor/Pack/A.sbactorpack", "Map/x.mubin"}, (*manifest.Pending).Change))
	require.NoError(t, updatePending([]string{"Map/x.mubin"}, (*manifest.Pending).Remove))

	p, err := manifest.LoadPending(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"Actor/Pack/A.bactorpack"}, p.Files)
	assert.Equal(t, []string{"Map/x.mubin"}, p.Delete)
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"apply", "pack", "index", "cache", "config", "history", "pending", "version"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}
