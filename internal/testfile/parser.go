// Package testfile reads solution test files: the problem url tag, include
// expansion and the ignore and extension rules.
package testfile

import (
	"os"
	"path/filepath"
	"strings"

	appErr "reftester/pkg/errors"

	"github.com/google/shlex"
)

const (
	tagProblemURL = "@problem_url:"
	tagInclude    = "@include:"

	DefaultIgnorePrefix = "_"
)

// DefaultExtensions are the file name suffixes accepted as test files.
var DefaultExtensions = []string{".cpp"}

// Config controls which files are tests and where includes are looked up.
type Config struct {
	Extensions   []string `yaml:"extensions"`
	IgnorePrefix string   `yaml:"ignorePrefix"`
	IncludeRoots []string `yaml:"includeRoots"`
}

// TestFile is a parsed test file ready for submission.
type TestFile struct {
	Path       string
	ProblemURL string
	// Content is the file with tag lines removed and includes expanded.
	Content string
}

type Parser struct {
	cfg Config
}

func NewParser(cfg Config) *Parser {
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultExtensions
	}
	if cfg.IgnorePrefix == "" {
		cfg.IgnorePrefix = DefaultIgnorePrefix
	}
	return &Parser{cfg: cfg}
}

// Ignored reports whether the file name carries the ignore prefix.
func (p *Parser) Ignored(path string) bool {
	return strings.HasPrefix(filepath.Base(path), p.cfg.IgnorePrefix)
}

// Parse validates the extension, reads the file and resolves its tags.
func (p *Parser) Parse(path string) (TestFile, error) {
	if !p.hasExtension(path) {
		return TestFile{}, appErr.Newf(appErr.WrongExtension,
			"file doesn't have a test file extension %v: %s", p.cfg.Extensions, path).
			WithDetail("path", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return TestFile{}, appErr.Wrapf(err, appErr.FileReadFailed, "could not open test file %s", path).
			WithDetail("path", path)
	}

	var (
		urls []string
		out  []string
	)
	for _, line := range strings.Split(string(data), "\n") {
		tag, value, ok := parseTag(line)
		if !ok {
			out = append(out, line)
			continue
		}
		switch tag {
		case tagProblemURL:
			if fields := strings.Fields(value); len(fields) > 0 {
				urls = append(urls, fields[0])
			}
		case tagInclude:
			content, err := p.include(path, value)
			if err != nil {
				return TestFile{}, err
			}
			out = append(out, strings.TrimSuffix(content, "\n"))
		}
	}

	switch {
	case len(urls) == 0:
		return TestFile{}, appErr.Newf(appErr.NoURL, "test file has no problem url: %s", path).
			WithDetail("path", path)
	case len(urls) > 1:
		return TestFile{}, appErr.Newf(appErr.MultipleURLs, "test file has %d problem urls: %s", len(urls), path).
			WithDetail("path", path)
	}
	return TestFile{Path: path, ProblemURL: urls[0], Content: strings.Join(out, "\n")}, nil
}

func (p *Parser) hasExtension(path string) bool {
	name := filepath.Base(path)
	for _, ext := range p.cfg.Extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// include reads the file named by an include tag. Relative names are tried
// against the test file's directory, then each include root, then the working directory.
func (p *Parser) include(testPath, value string) (string, error) {
	args, err := shlex.Split(value)
	if err != nil || len(args) != 1 {
		if err == nil {
			err = appErr.Newf(appErr.InvalidParams, "expected one include path, got %d", len(args))
		}
		return "", appErr.Wrapf(err, appErr.IncludeNotFound, "bad include tag %q in %s", value, testPath).
			WithDetail("path", value)
	}
	name := args[0]

	candidates := []string{name}
	if !filepath.IsAbs(name) {
		candidates = []string{filepath.Join(filepath.Dir(testPath), name)}
		for _, root := range p.cfg.IncludeRoots {
			candidates = append(candidates, filepath.Join(root, name))
		}
		candidates = append(candidates, name)
	}

	var lastErr error
	for _, c := range candidates {
		data, err := os.ReadFile(c)
		if err == nil {
			return string(data), nil
		}
		lastErr = err
	}
	return "", appErr.Wrapf(lastErr, appErr.IncludeNotFound, "include file not found: %s", name).
		WithDetail("path", name)
}

// parseTag recognises `// @tag: value` lines.
func parseTag(line string) (tag, value string, ok bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(line), "//")
	if !found {
		return "", "", false
	}
	rest = strings.TrimSpace(rest)
	for _, t := range []string{tagProblemURL, tagInclude} {
		if v, found := strings.CutPrefix(rest, t); found {
			return t, strings.TrimSpace(v), true
		}
	}
	return "", "", false
}
