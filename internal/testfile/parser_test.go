package testfile_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"reftester/internal/testfile"
	appErr "reftester/pkg/errors"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestParse(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "lib", "dsu.h"), "struct DSU {};\n")
	writeFile(t, filepath.Join(dir, "my lib.h"), "int spaced;\n")

	tests := []struct {
		name    string
		file    string
		content string
		wantURL string
		want    string
		code    appErr.ErrorCode
	}{
		{
			name:    "problem url",
			file:    "a.cpp",
			content: "// @problem_url: https://codeforces.com/contest/1/problem/A\nint main() {}\n",
			wantURL: "https://codeforces.com/contest/1/problem/A",
			want:    "int main() {}\n",
		},
		{
			name:    "indented tag and plain comments kept",
			file:    "b.cpp",
			content: "// plain comment\n  //   @problem_url:   https://x.example/p  \nint x;",
			wantURL: "https://x.example/p",
			want:    "// plain comment\nint x;",
		},
		{
			name:    "include inlined",
			file:    "c.cpp",
			content: "// @problem_url: u\n// @include: lib/dsu.h\nint main() {}\n",
			wantURL: "u",
			want:    "struct DSU {};\nint main() {}\n",
		},
		{
			name:    "quoted include path",
			file:    "d.cpp",
			content: "// @problem_url: u\n// @include: \"my lib.h\"\n",
			wantURL: "u",
			want:    "int spaced;\n",
		},
		{name: "no url", file: "e.cpp", content: "int main() {}\n", code: appErr.NoURL},
		{name: "two urls", file: "f.cpp", content: "// @problem_url: a\n// @problem_url: b\n", code: appErr.MultipleURLs},
		{name: "missing include", file: "g.cpp", content: "// @problem_url: u\n// @include: nope.h\n", code: appErr.IncludeNotFound},
		{name: "unbalanced include quote", file: "h.cpp", content: "// @problem_url: u\n// @include: \"nope.h\n", code: appErr.IncludeNotFound},
		{name: "wrong extension", file: "i.py", content: "# @problem_url: u\n", code: appErr.WrongExtension},
	}

	p := testfile.NewParser(testfile.Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, filepath.Join(dir, tt.file), tt.content)
			got, err := p.Parse(path)
			if tt.code != 0 {
				if !appErr.Is(err, tt.code) {
					t.Fatalf("Parse() error = %v, want code %d", err, tt.code)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got.ProblemURL != tt.wantURL {
				t.Errorf("ProblemURL = %q, want %q", got.ProblemURL, tt.wantURL)
			}
			if got.Content != tt.want {
				t.Errorf("Content = %q, want %q", got.Content, tt.want)
			}
			if got.Path != path {
				t.Errorf("Path = %q, want %q", got.Path, path)
			}
		})
	}
}

func TestParseIncludeRoots(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "library")
	writeFile(t, filepath.Join(root, "seg.h"), "// seg\n")
	path := writeFile(t, filepath.Join(dir, "tests", "a.cpp"), "// @problem_url: u\n// @include: seg.h\n")

	if _, err := testfile.NewParser(testfile.Config{}).Parse(path); !appErr.Is(err, appErr.IncludeNotFound) {
		t.Fatalf("without roots: error = %v, want IncludeNotFound", err)
	}

	got, err := testfile.NewParser(testfile.Config{IncludeRoots: []string{root}}).Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.Content != "// seg\n" {
		t.Fatalf("Content = %q", got.Content)
	}
}

func TestParseLocalIncludeWins(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "library")
	writeFile(t, filepath.Join(root, "x.h"), "root\n")
	writeFile(t, filepath.Join(dir, "tests", "x.h"), "local\n")
	path := writeFile(t, filepath.Join(dir, "tests", "a.cpp"), "// @problem_url: u\n// @include: x.h")

	got, err := testfile.NewParser(testfile.Config{IncludeRoots: []string{root}}).Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.Content != "local" {
		t.Fatalf("Content = %q, want local include", got.Content)
	}
}

func TestParseUnreadable(t *testing.T) {
	_, err := testfile.NewParser(testfile.Config{}).Parse(filepath.Join(t.TempDir(), "missing.cpp"))
	if !appErr.Is(err, appErr.FileReadFailed) {
		t.Fatalf("error = %v, want FileReadFailed", err)
	}
}

func TestParseCustomExtension(t *testing.T) {
	dir := t.TempDir()
	p := testfile.NewParser(testfile.Config{Extensions: []string{".test.cpp"}})

	plain := writeFile(t, filepath.Join(dir, "a.cpp"), "// @problem_url: u\n")
	if _, err := p.Parse(plain); !appErr.Is(err, appErr.WrongExtension) {
		t.Fatalf("error = %v, want WrongExtension", err)
	}
	test := writeFile(t, filepath.Join(dir, "a.test.cpp"), "// @problem_url: u\n")
	if _, err := p.Parse(test); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
}

func TestIgnored(t *testing.T) {
	tests := []struct {
		path string
		cfg  testfile.Config
		want bool
	}{
		{path: "dir/_skip.cpp", want: true},
		{path: "_dir/run.cpp", want: false},
		{path: "dir/run.cpp", want: false},
		{path: "dir/skip.cpp", cfg: testfile.Config{IgnorePrefix: "skip"}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := testfile.NewParser(tt.cfg).Ignored(tt.path); got != tt.want {
				t.Errorf("Ignored(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "b", "a.cpp"), "")
	b := writeFile(t, filepath.Join(dir, "a.cpp"), "")
	c := writeFile(t, filepath.Join(dir, "b", "c", "_x.cpp"), "")

	got, err := testfile.Discover(dir, a, filepath.Join(dir, "b"))
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	want := []string{b, a, c}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Discover() = %v, want %v", got, want)
	}
}

func TestDiscoverMissingRoot(t *testing.T) {
	if _, err := testfile.Discover(filepath.Join(t.TempDir(), "nope")); !appErr.Is(err, appErr.FileReadFailed) {
		t.Fatalf("error = %v, want FileReadFailed", err)
	}
}
