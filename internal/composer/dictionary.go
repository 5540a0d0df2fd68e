// Package composer implements the afrim-style composition engine used by
// ibus-afrim: sequence replacement, code translation and Lua translators
// over an immutable dictionary snapshot.
package composer

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Defaults for the [core] section.
const (
	DefaultBufferSize = 64
	maxIncludeDepth   = 8
)

// ErrUnsupportedFormat is returned for dictionary files with an unknown
// extension.
var ErrUnsupportedFormat = errors.New("unsupported dictionary format")

//go:embed dictionary.schema.json
var schemaJSON []byte

var dictionarySchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("dictionary.schema.json", bytes.NewReader(schemaJSON)); err != nil {
		panic(err)
	}
	return c.MustCompile("dictionary.schema.json")
}

// Predicate is one translation match for the current input.
type Predicate struct {
	Code      string
	Remaining string
	Texts     []string
	CanCommit bool
}

// Script is a Lua translator. Source is read once at load time.
type Script struct {
	Name   string
	Path   string
	Source string
}

// Dictionary is an immutable snapshot of a loaded dictionary. It is safe
// to share between composers.
type Dictionary struct {
	Name       string
	bufferSize int
	autoCommit bool

	data      map[string]string
	maxSeq    int
	alphabet  map[rune]struct{}
	lookup    translation
	scripts   []Script
	closeFunc func() error
}

// Empty returns a dictionary with no data, translations or scripts.
func Empty() *Dictionary {
	return &Dictionary{
		bufferSize: DefaultBufferSize,
		data:       map[string]string{},
		alphabet:   map[rune]struct{}{},
		lookup:     newMemoryTranslation(nil),
	}
}

// BufferSize is the maximum number of runes composed before the
// preedit is committed.
func (d *Dictionary) BufferSize() int { return d.bufferSize }

// AutoCommit reports whether a sole exact match commits immediately.
func (d *Dictionary) AutoCommit() bool { return d.autoCommit }

// Scripts returns the Lua translators.
func (d *Dictionary) Scripts() []Script { return d.scripts }

// Sequences returns the number of data sequences.
func (d *Dictionary) Sequences() int { return len(d.data) }

// Composable reports whether r takes part in any sequence or code.
func (d *Dictionary) Composable(r rune) bool {
	_, ok := d.alphabet[r]
	return ok
}

// Transform replaces data sequences in input, longest match first,
// scanning left to right.
func (d *Dictionary) Transform(input string) string {
	if len(d.data) == 0 || input == "" {
		return input
	}
	runes := []rune(input)
	var b strings.Builder
	for i := 0; i < len(runes); {
		matched := false
		for n := min(d.maxSeq, len(runes)-i); n > 0; n-- {
			if text, ok := d.data[string(runes[i:i+n])]; ok {
				b.WriteString(text)
				i += n
				matched = true
				break
			}
		}
		if !matched {
			b.WriteRune(runes[i])
			i++
		}
	}
	return b.String()
}

// Translate returns the translations whose code starts with input.
func (d *Dictionary) Translate(input string) ([]Predicate, error) {
	if input == "" {
		return nil, nil
	}
	return d.lookup.prefix(input)
}

// Close releases resources held by the snapshot.
func (d *Dictionary) Close() error {
	if d.closeFunc != nil {
		return d.closeFunc()
	}
	return nil
}

// Load reads a dictionary, choosing the decoder by extension. Included
// files and Lua scripts are resolved relative to the including file.
func Load(path string) (*Dictionary, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sqlite", ".sqlite3", ".db":
		return LoadSQLite(path)
	}

	doc, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	if err := validate(doc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	d := Empty()
	b := &builder{dict: d, entries: map[string][]string{}}
	if err := b.apply(doc, filepath.Dir(path), 0); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	b.finish()
	return d, nil
}

func decodeFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}

	var doc map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return nil, fmt.Errorf("parse TOML %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse JSON %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse YAML %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// validate checks a decoded document against the embedded schema. The
// document is round-tripped through JSON so TOML and YAML scalars take
// the shapes the validator expects.
func validate(doc map[string]any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("normalize dictionary: %w", err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("normalize dictionary: %w", err)
	}
	if err := dictionarySchema.Validate(instance); err != nil {
		return fmt.Errorf("invalid dictionary: %w", err)
	}
	return nil
}

type builder struct {
	dict    *Dictionary
	entries map[string][]string
}

func (b *builder) apply(doc map[string]any, dir string, depth int) error {
	if depth > maxIncludeDepth {
		return errors.New("includes nested too deeply")
	}

	if info, ok := doc["info"].(map[string]any); ok && b.dict.Name == "" {
		b.dict.Name, _ = info["name"].(string)
	}
	if core, ok := doc["core"].(map[string]any); ok {
		if n, ok := asInt(core["buffer_size"]); ok && n > 0 {
			b.dict.bufferSize = n
		}
		if v, ok := core["auto_commit"].(bool); ok {
			b.dict.autoCommit = v
		}
	}

	if data, ok := doc["data"].(map[string]any); ok {
		for key, v := range data {
			if err := b.addData(key, v, dir, depth); err != nil {
				return fmt.Errorf("data %q: %w", key, err)
			}
		}
	}
	if tr, ok := doc["translation"].(map[string]any); ok {
		for key, v := range tr {
			if err := b.addTranslation(key, v, dir, depth); err != nil {
				return fmt.Errorf("translation %q: %w", key, err)
			}
		}
	}
	if scripts, ok := doc["translators"].(map[string]any); ok {
		for name, v := range scripts {
			if err := b.addScript(name, v, dir); err != nil {
				return fmt.Errorf("translator %q: %w", name, err)
			}
		}
	}
	return nil
}

func (b *builder) include(path, dir string, depth int) error {
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	doc, err := decodeFile(path)
	if err != nil {
		return err
	}
	if err := validate(doc); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return b.apply(doc, filepath.Dir(path), depth+1)
}

func (b *builder) addData(key string, v any, dir string, depth int) error {
	switch v := v.(type) {
	case string:
		b.setData(key, v)
	case map[string]any:
		if p, ok := v["path"].(string); ok {
			return b.include(p, dir, depth)
		}
		value, _ := v["value"].(string)
		b.setData(key, value)
		for _, alias := range asStrings(v["alias"]) {
			b.setData(alias, value)
		}
	default:
		return fmt.Errorf("unexpected value %T", v)
	}
	return nil
}

func (b *builder) setData(seq, text string) {
	if seq == "" {
		return
	}
	b.dict.data[seq] = text
	b.dict.maxSeq = max(b.dict.maxSeq, utf8.RuneCountInString(seq))
	b.addAlphabet(seq)
}

func (b *builder) addTranslation(key string, v any, dir string, depth int) error {
	switch v := v.(type) {
	case string:
		b.setTranslation(key, v)
	case []any:
		b.setTranslation(key, asStrings(v)...)
	case map[string]any:
		if p, ok := v["path"].(string); ok {
			return b.include(p, dir, depth)
		}
		values := asStrings(v["value"])
		b.setTranslation(key, values...)
		for _, alias := range asStrings(v["alias"]) {
			b.setTranslation(alias, values...)
		}
	default:
		return fmt.Errorf("unexpected value %T", v)
	}
	return nil
}

func (b *builder) setTranslation(code string, texts ...string) {
	if code == "" {
		return
	}
	b.entries[code] = append(b.entries[code], texts...)
	b.addAlphabet(code)
}

func (b *builder) addScript(name string, v any, dir string) error {
	path, ok := v.(string)
	if !ok {
		m, _ := v.(map[string]any)
		path, _ = m["path"].(string)
	}
	if path == "" {
		return errors.New("missing script path")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	b.dict.scripts = append(b.dict.scripts, Script{Name: name, Path: path, Source: string(src)})
	return nil
}

func (b *builder) addAlphabet(s string) {
	for _, r := range s {
		b.dict.alphabet[r] = struct{}{}
	}
}

func (b *builder) finish() {
	b.dict.lookup = newMemoryTranslation(b.entries)
	sort.Slice(b.dict.scripts, func(i, j int) bool { return b.dict.scripts[i].Name < b.dict.scripts[j].Name })
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func asStrings(v any) []string {
	switch v := v.(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if s, ok := s.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	}
	return nil
}
