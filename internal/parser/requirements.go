package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/acheong08/sentinel/pkg/models"
)

// RequirementsFile is the conventional manifest name
const RequirementsFile = "requirements.txt"

// Comparators are tried in this order; the first one present in a line wins,
// regardless of where in the line it occurs.
var Comparators = []string{"==", ">=", "<=", "~=", ">"}

// ParseRequirements turns manifest text into declarations, preserving order and duplicates.
// Comments and blank lines are skipped; lines without a comparator become name-only.
func ParseRequirements(content string) []models.DependencyDeclaration {
	var decls []models.DependencyDeclaration
	for _, line := range strings.Split(content, "\n") {
		if decl, ok := ParseLine(line); ok {
			decls = append(decls, decl)
		}
	}
	return decls
}

// ParseLine parses a single manifest line. ok is false for blank and comment lines.
func ParseLine(line string) (models.DependencyDeclaration, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return models.DependencyDeclaration{}, false
	}

	for _, sep := range Comparators {
		name, version, found := strings.Cut(line, sep)
		if !found {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			// "==1.0" has nothing to look up; keep the raw line as the name
			break
		}
		return models.NewDeclaration(name, strings.TrimSpace(version)), true
	}

	return models.DependencyDeclaration{Name: line}, true
}

// ReadRequirements parses a manifest from r
func ReadRequirements(r io.Reader) ([]models.DependencyDeclaration, error) {
	var decls []models.DependencyDeclaration
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if decl, ok := ParseLine(scanner.Text()); ok {
			decls = append(decls, decl)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read requirements: %w", err)
	}
	return decls, nil
}

// ParseRequirementsFile reads and parses a requirements file
func ParseRequirementsFile(path string) ([]models.DependencyDeclaration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParseRequirements(string(data)), nil
}

// FindRequirements searches for requirements.txt in the given directory
func FindRequirements(dir string) (string, error) {
	path := filepath.Join(dir, RequirementsFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", fmt.Errorf("%s not found in %s", RequirementsFile, dir)
	}
	return path, nil
}
