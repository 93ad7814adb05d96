// Package skill resolves named skills to invocable prompt templates. A skill
// is a directory containing a SKILL.md file: YAML frontmatter (name,
// description, optional model and system prompt) followed by a template body
// that binds the variables userPrompt and context.
package skill

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/skillprobe/internal/util"
)

// skillFile is the manifest file expected inside every skill directory.
const skillFile = "SKILL.md"

const frontmatterDelimiter = "---"

// Metadata is the YAML frontmatter of a SKILL.md file.
type Metadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Model       string `yaml:"model,omitempty"`
	System      string `yaml:"system,omitempty"`
}

// Skill is a resolved skill: metadata plus the prompt template body.
type Skill struct {
	Name        string
	Description string
	Model       string
	System      string
	Dir         string
	Template    string
}

// Render binds the template variables and returns the final prompt text.
func (s *Skill) Render(userPrompt, contextText string) (string, error) {
	rendered, err := util.RenderTemplate(s.Template, map[string]any{
		"userPrompt": userPrompt,
		"context":    contextText,
	})
	if err != nil {
		return "", fmt.Errorf("render skill %q: %w", s.Name, err)
	}
	return rendered, nil
}

// Load reads and parses the skill in dir.
func Load(dir string) (*Skill, error) {
	raw, err := os.ReadFile(filepath.Join(dir, skillFile))
	if err != nil {
		return nil, fmt.Errorf("read skill manifest: %w", err)
	}

	meta, body, err := splitFrontmatter(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse skill manifest %s: %w", dir, err)
	}
	if meta.Name == "" {
		meta.Name = filepath.Base(dir)
	}

	return &Skill{
		Name:        meta.Name,
		Description: meta.Description,
		Model:       meta.Model,
		System:      meta.System,
		Dir:         dir,
		Template:    strings.TrimSpace(body),
	}, nil
}

// splitFrontmatter separates the YAML frontmatter from the template body.
// Files without frontmatter are treated as pure template bodies.
func splitFrontmatter(content string) (Metadata, string, error) {
	var meta Metadata

	trimmed := strings.TrimLeft(content, "\n\r ")
	if !strings.HasPrefix(trimmed, frontmatterDelimiter+"\n") {
		return meta, content, nil
	}

	rest := trimmed[len(frontmatterDelimiter)+1:]
	end := strings.Index(rest, "\n"+frontmatterDelimiter)
	if end < 0 {
		return meta, "", fmt.Errorf("unterminated frontmatter")
	}

	if err := yaml.Unmarshal([]byte(rest[:end]), &meta); err != nil {
		return meta, "", fmt.Errorf("frontmatter: %w", err)
	}

	body := rest[end+len("\n"+frontmatterDelimiter):]
	if i := strings.Index(body, "\n"); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}
	return meta, body, nil
}

// Registry holds the skills discovered under one root directory, keyed by name.
type Registry struct {
	skills map[string]*Skill
}

// LoadDir loads every immediate subdirectory of root that contains a
// SKILL.md. Directories without a manifest are skipped silently.
func LoadDir(root string) (*Registry, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read skills dir: %w", err)
	}

	reg := &Registry{skills: make(map[string]*Skill)}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, skillFile)); err != nil {
			continue
		}
		s, err := Load(dir)
		if err != nil {
			return nil, err
		}
		if _, exists := reg.skills[s.Name]; exists {
			return nil, fmt.Errorf("duplicate skill name %q", s.Name)
		}
		reg.skills[s.Name] = s
	}
	return reg, nil
}

// Resolve returns the named skill or an error listing what is available.
func (r *Registry) Resolve(name string) (*Skill, error) {
	s, ok := r.skills[name]
	if !ok {
		return nil, fmt.Errorf("unknown skill %q (available: %s)", name, strings.Join(r.Names(), ", "))
	}
	return s, nil
}

// Names returns the registered skill names in arbitrary order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	return names
}
