package domain

import (
	"errors"
	"strings"
	"time"
)

// Template references a simulation template whose definition document lives
// in object storage.
type Template struct {
	ID          string
	Name        string
	Type        string
	Description string
	ObjectKey   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (t Template) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("template id is required")
	}
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("template name is required")
	}
	if strings.TrimSpace(t.ObjectKey) == "" {
		return errors.New("template object key is required")
	}
	return nil
}

// TemplateDefinition is the parsed YAML document behind a template reference.
type TemplateDefinition struct {
	Name       string         `yaml:"name"`
	Type       string         `yaml:"type"`
	Topics     []string       `yaml:"topics"`
	Parameters map[string]any `yaml:"parameters"`
}
