package composer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadSample(t *testing.T) *Dictionary {
	t.Helper()
	d, err := Load(filepath.Join("testdata", "sample.toml"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func codes(preds []Predicate) []string {
	out := make([]string, 0, len(preds))
	for _, p := range preds {
		out = append(out, p.Code)
	}
	return out
}

func TestLoadTOML(t *testing.T) {
	d := loadSample(t)

	assert.Equal(t, "sample", d.Name)
	assert.Equal(t, 16, d.BufferSize())
	assert.False(t, d.AutoCommit())
	require.Len(t, d.Scripts(), 1)
	assert.Equal(t, "upper", d.Scripts()[0].Name)
	assert.Contains(t, d.Scripts()[0].Source, "function translate")
}

func TestLoadJSON(t *testing.T) {
	d, err := Load(filepath.Join("testdata", "sample.json"))
	require.NoError(t, err)

	assert.Equal(t, 8, d.BufferSize())
	assert.True(t, d.AutoCommit())
	assert.Equal(t, "à", d.Transform("a1"))
}

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "min.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data:\n  a1: à\n"), 0644))

	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultBufferSize, d.BufferSize())
	assert.False(t, d.AutoCommit())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "invalid.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid dictionary")

	_, err = Load(filepath.Join("testdata", "missing.toml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "dict.ini")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	_, err = Load(path)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[translators]\nx = \"nope.lua\"\n"), 0644))
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "self.toml")
	require.NoError(t, os.WriteFile(path, []byte("[data]\nme = { path = \"self.toml\" }\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nested too deeply")
}

func TestTransform(t *testing.T) {
	d := loadSample(t)

	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"a", "a"},
		{"a1", "à"},
		{"a1a2", "àá"},
		{"ee", "ɛ"},
		{"ee1", "ɛ̀"},
		{"e1e", "ɛ̀"},
		{"eee", "ɛe"},
		{"oonn", "ɔŋ"},
		{"uu", "ʉ"},
		{"xa1x", "xàx"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Transform(tt.input))
		})
	}
}

func TestTranslate(t *testing.T) {
	d := loadSample(t)

	preds, err := d.Translate("he")
	require.NoError(t, err)
	assert.Equal(t, []string{"he", "hee", "hel", "hello"}, codes(preds))

	assert.True(t, preds[0].CanCommit)
	assert.Equal(t, []string{"he", "hé"}, preds[0].Texts)
	assert.Equal(t, "l", preds[2].Remaining)
	assert.Equal(t, "llo", preds[3].Remaining)
	assert.False(t, preds[3].CanCommit)

	preds, err = d.Translate("wo")
	require.NoError(t, err)
	assert.Equal(t, []string{"wo", "world"}, codes(preds))

	preds, err = d.Translate("zz")
	require.NoError(t, err)
	assert.Empty(t, preds)

	preds, err = d.Translate("")
	require.NoError(t, err)
	assert.Empty(t, preds)
}

func TestComposable(t *testing.T) {
	d := loadSample(t)
	assert.True(t, d.Composable('1'))
	assert.True(t, d.Composable('e'))
	assert.False(t, d.Composable('.'))
	assert.False(t, d.Composable('x'))
}

func TestEmpty(t *testing.T) {
	d := Empty()
	assert.Equal(t, DefaultBufferSize, d.BufferSize())
	assert.Equal(t, "abc", d.Transform("abc"))
	preds, err := d.Translate("abc")
	assert.NoError(t, err)
	assert.Empty(t, preds)
	assert.NoError(t, d.Close())
}
