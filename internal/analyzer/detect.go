// internal/analyzer/detect.go
package analyzer

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/xkilldash9x/repomedic/api/schemas"
)

// languageMarkers map top-level files to a language, checked in order.
var languageMarkers = []struct {
	files []string
	lang  schemas.Language
}{
	{[]string{"package.json"}, schemas.LanguageNode},
	{[]string{"requirements.txt", "setup.py", "pyproject.toml"}, schemas.LanguagePython},
	{[]string{"go.mod"}, schemas.LanguageGo},
	{[]string{"Cargo.toml"}, schemas.LanguageRust},
	{[]string{"pom.xml", "build.gradle"}, schemas.LanguageJava},
}

// runtimeTable is the immutable language → runtime mapping.
var runtimeTable = map[schemas.Language]schemas.RuntimeDescriptor{
	schemas.LanguageNode: {
		Image:      "node:20-alpine",
		InstallCmd: "npm install --no-audit --no-fund",
		TestCmd:    "npm test",
	},
	schemas.LanguagePython: {
		Image:      "python:3.11-slim",
		InstallCmd: "pip install -r requirements.txt",
		TestCmd:    "python -m pytest",
	},
	schemas.LanguageGo: {
		Image:   "golang:1.22-alpine",
		TestCmd: "go test ./...",
	},
	schemas.LanguageRust: {
		Image:   "rust:1.79-slim",
		TestCmd: "cargo test",
	},
	schemas.LanguageJava: {
		Image:   "maven:3.9-eclipse-temurin-17",
		TestCmd: "mvn -q test",
	},
}

// testFilePatterns identify test files per language.
var testFilePatterns = map[schemas.Language]*regexp.Regexp{
	schemas.LanguageNode:   regexp.MustCompile(`(\.test\.|\.spec\.)(jsx?|tsx?|mjs|cjs)$`),
	schemas.LanguagePython: regexp.MustCompile(`(^test_.*\.py|_test\.py)$`),
	schemas.LanguageGo:     regexp.MustCompile(`_test\.go$`),
	schemas.LanguageRust:   regexp.MustCompile(`\.rs$`),
	schemas.LanguageJava:   regexp.MustCompile(`Test\.java$`),
}

// skippedDirs are never descended into during test discovery.
var skippedDirs = map[string]struct{}{
	"node_modules": {},
	"__pycache__":  {},
	"vendor":       {},
	"dist":         {},
	"build":        {},
	"target":       {},
	"venv":         {},
	".venv":        {},
}

// DetectLanguage inspects the top-level file set for well-known markers.
// Defaults to node when nothing matches.
func DetectLanguage(dir string) schemas.Language {
	for _, marker := range languageMarkers {
		for _, file := range marker.files {
			if _, err := os.Stat(filepath.Join(dir, file)); err == nil {
				return marker.lang
			}
		}
	}
	return schemas.LanguageNode
}

// RuntimeFor returns the runtime descriptor for a language. Unknown languages
// get the node runtime, mirroring the detection default.
func RuntimeFor(lang schemas.Language) schemas.RuntimeDescriptor {
	if rt, ok := runtimeTable[lang]; ok {
		return rt
	}
	return runtimeTable[schemas.LanguageNode]
}

// DiscoverTests walks the tree and collects test files for the language,
// skipping hidden directories and common vendor directories. Rust test
// discovery is special-cased to the conventional tests/ directory plus any
// source file, since rust inlines unit tests.
func DiscoverTests(dir string, lang schemas.Language) ([]string, error) {
	pattern := testFilePatterns[lang]
	if pattern == nil {
		pattern = testFilePatterns[schemas.LanguageNode]
	}

	var tests []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path == dir {
				return nil
			}
			if name[0] == '.' {
				return filepath.SkipDir
			}
			if _, skip := skippedDirs[name]; skip {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if lang == schemas.LanguageRust {
			if pattern.MatchString(name) && strings.HasPrefix(rel, "tests/") {
				tests = append(tests, rel)
			}
			return nil
		}

		if pattern.MatchString(name) {
			tests = append(tests, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tests, nil
}
