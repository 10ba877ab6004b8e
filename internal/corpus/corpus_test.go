package corpus_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/torosent/tickfire/internal/corpus"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestDetectFormat(t *testing.T) {
	tests := map[string]corpus.Format{
		"terms.json": corpus.FormatJSON,
		"terms.YAML": corpus.FormatYAML,
		"terms.yml":  corpus.FormatYAML,
		"terms.csv":  corpus.FormatCSV,
		"terms.txt":  corpus.FormatLines,
		"terms":      corpus.FormatLines,
	}
	for path, want := range tests {
		if got := corpus.DetectFormat(path); got != want {
			t.Errorf("DetectFormat(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestLoadFileFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		format  corpus.Format
		path    string
		column  string
		want    []string
	}{
		{
			name:    "lines skip blanks and keep inner spaces",
			file:    "terms.txt",
			content: "mind\r\n\n  \nwire tap\n",
			want:    []string{"mind", "wire tap"},
		},
		{
			name:    "json array of strings",
			file:    "terms.json",
			content: `["mind", "wire"]`,
			want:    []string{"mind", "wire"},
		},
		{
			name:    "json objects sent raw",
			file:    "terms.json",
			content: `[{"q":"mind"}, 7]`,
			want:    []string{`{"q":"mind"}`, "7"},
		},
		{
			name:    "json path selects nested array",
			file:    "search.json",
			content: `{"search": {"terms": ["mind", "wire"]}}`,
			path:    "$.search.terms",
			want:    []string{"mind", "wire"},
		},
		{
			name:    "json path with query",
			file:    "search.json",
			content: `{"items": [{"term":"mind","on":true},{"term":"wire","on":false}]}`,
			path:    "items.#(on==true)#.term",
			want:    []string{"mind"},
		},
		{
			name:    "yaml sequence",
			file:    "terms.yaml",
			content: "- mind\n- wire\n",
			want:    []string{"mind", "wire"},
		},
		{
			name:    "yaml payloads mapping with nested item",
			file:    "terms.yml",
			content: "payloads:\n  - mind\n  - {q: wire}\n",
			want:    []string{"mind", "{q: wire}"},
		},
		{
			name:    "csv first column by default",
			file:    "terms.csv",
			content: "term,weight\nmind,1\nwire,2\n",
			want:    []string{"mind", "wire"},
		},
		{
			name:    "csv column by name",
			file:    "terms.csv",
			content: "id,term\n1,mind\n2,wire\n",
			column:  "term",
			want:    []string{"mind", "wire"},
		},
		{
			name:    "csv column by index",
			file:    "terms.csv",
			content: "id,term\n1,mind\n2,wire\n",
			column:  "1",
			want:    []string{"mind", "wire"},
		},
		{
			name:    "explicit format overrides extension",
			file:    "terms.txt",
			content: `["mind"]`,
			format:  corpus.FormatJSON,
			want:    []string{"mind"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			got, err := corpus.LoadFile(path, tt.format, tt.path, tt.column)
			if err != nil {
				t.Fatalf("LoadFile() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("LoadFile() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		format  corpus.Format
		path    string
		column  string
		wantErr string
	}{
		{"invalid json", "a.json", `[`, "", "", "", "invalid JSON"},
		{"json object without path", "a.json", `{"a":1}`, "", "", "", "expected a JSON array"},
		{"missing json path", "a.json", `{"a":1}`, "", "b", "", "not found"},
		{"yaml scalar", "a.yaml", "mind", "", "", "", "expected a sequence"},
		{"yaml mapping without payloads", "a.yaml", "terms: [a]", "", "", "", "payloads"},
		{"csv header only", "a.csv", "term\n", "", "", "", "at least one header row"},
		{"csv unknown column", "a.csv", "term\nmind\n", "", "", "nope", "column \"nope\" not found"},
		{"unsupported format", "a.txt", "mind", "xml", "", "", "not supported"},
		{"empty lines file", "a.txt", "\n\n", "", "", "", "corpus is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			_, err := corpus.LoadFile(path, tt.format, tt.path, tt.column)
			if err == nil {
				t.Fatal("LoadFile() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := corpus.LoadFile(filepath.Join(t.TempDir(), "missing.txt"), "", "", "")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want os.ErrNotExist", err)
	}
}

func TestLoadCombinesInlineAndFile(t *testing.T) {
	path := writeFile(t, "terms.txt", "wire\n")
	got, err := corpus.Load(corpus.Source{Inline: []string{"mind", ""}, File: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{"mind", "", "wire"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %q, want %q", got, want)
	}
}

func TestLoadEmptySource(t *testing.T) {
	if _, err := corpus.Load(corpus.Source{}); !errors.Is(err, corpus.ErrEmpty) {
		t.Errorf("Load() error = %v, want ErrEmpty", err)
	}
}
