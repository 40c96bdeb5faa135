package schema

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/vektah/gqlparser/v2/ast"
	"gopkg.in/yaml.v3"

	"github.com/gqlgate/gqlgate/pkg/errdefs"
)

// Common errors for configuration loading.
var (
	ErrFileNotFound     = errors.New("configuration file not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidYAML      = errors.New("invalid YAML syntax")
	ErrEmptyFile        = errors.New("configuration file is empty")
)

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnvVars replaces ${VAR} and ${VAR:-default} references with values
// from the environment. Unset variables without a default expand to "".
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		submatch := envVarPattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}
		if val := os.Getenv(submatch[1]); val != "" {
			return val
		}
		if len(submatch) >= 3 {
			return submatch[2]
		}
		return ""
	})
}

// Load reads, validates and builds the configuration file at path.
// Relative schemaFiles, template files and backend files resolve against the
// directory of path.
func Load(path string) (*Configuration, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}

	return Parse(data, filepath.Dir(path))
}

// Parse builds a Configuration from YAML bytes. baseDir resolves relative
// file references; an empty baseDir means the working directory.
func Parse(data []byte, baseDir string) (*Configuration, error) {
	expanded := []byte(ExpandEnvVars(string(data)))

	var raw any
	if err := yaml.Unmarshal(expanded, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	if err := ValidateStructure(raw); err != nil {
		return nil, err
	}

	var doc Document
	if err := yaml.Unmarshal(expanded, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	sdl, err := loadSDL(&doc, baseDir)
	if err != nil {
		return nil, err
	}
	if err := resolveFiles(&doc, baseDir); err != nil {
		return nil, err
	}
	return New(&doc, sdl)
}

// loadSDL parses the inline schema together with every schemaFiles match.
// It returns nil when neither is configured.
func loadSDL(doc *Document, baseDir string) (*ast.Schema, error) {
	var sources []*ast.Source
	if strings.TrimSpace(doc.Schema) != "" {
		sources = append(sources, &ast.Source{Name: "schema", Input: doc.Schema})
	}

	for i, pattern := range doc.SchemaFiles {
		matches, err := expandGlob(resolvePath(baseDir, pattern))
		if err != nil {
			return nil, errdefs.InvalidConfiguration(fmt.Sprintf("schemaFiles[%d]", i), "invalid glob %q: %v", pattern, err)
		}
		if len(matches) == 0 {
			return nil, errdefs.InvalidConfiguration(fmt.Sprintf("schemaFiles[%d]", i), "no files match %q", pattern)
		}
		sort.Strings(matches)
		files, err := ReadSDLFiles(matches)
		if err != nil {
			return nil, err
		}
		sources = append(sources, files...)
	}

	if len(sources) == 0 {
		return nil, nil
	}
	return ParseSDL(sources...)
}

// resolveFiles makes backend and template file references absolute and
// inlines template files.
func resolveFiles(doc *Document, baseDir string) error {
	for name, b := range doc.Backends {
		if b.File != "" {
			b.File = resolvePath(baseDir, b.File)
			doc.Backends[name] = b
		}
	}
	for name, t := range doc.Templates {
		if t.File == "" {
			continue
		}
		path := resolvePath(baseDir, t.File)
		data, err := os.ReadFile(path)
		if err != nil {
			return errdefs.InvalidConfiguration("templates."+name+".file", "failed to read %s: %v", path, err)
		}
		t.Template = string(data)
		t.File = ""
		doc.Templates[name] = t
	}
	return nil
}

func resolvePath(baseDir, path string) string {
	if filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

// expandGlob expands a glob pattern to a list of matching file paths.
// Uses doublestar for ** support, falls back to filepath.Glob for simple patterns.
func expandGlob(pattern string) ([]string, error) {
	if strings.Contains(pattern, "**") {
		return doublestar.FilepathGlob(pattern)
	}
	return filepath.Glob(pattern)
}
