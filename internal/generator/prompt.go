package generator

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"
)

//go:embed system.tmpl
var defaultSystemPrompt string

// PromptData is the data the system prompt template is executed with.
type PromptData struct {
	Context   string
	UserQuery string
}

// DefaultTemplate returns the built-in system prompt template.
func DefaultTemplate() *template.Template {
	return template.Must(ParseTemplate(defaultSystemPrompt))
}

// ParseTemplate parses a system prompt template. The template must be
// executable against PromptData.
func ParseTemplate(text string) (*template.Template, error) {
	tmpl, err := template.New("system").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("generator: parse system prompt: %w", err)
	}
	// Catch references to fields PromptData does not have.
	if err := tmpl.Execute(&strings.Builder{}, PromptData{}); err != nil {
		return nil, fmt.Errorf("generator: invalid system prompt: %w", err)
	}
	return tmpl, nil
}

// LoadTemplate reads and parses a system prompt template from path.
func LoadTemplate(path string) (*template.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("generator: read system prompt: %w", err)
	}
	return ParseTemplate(string(data))
}

func render(tmpl *template.Template, data PromptData) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("generator: render system prompt: %w", err)
	}
	return b.String(), nil
}
