// Package prompt renders the instructions sent to the question/answer
// generator. A Template holds a system and a user text/template; templates are
// loaded from YAML so prompt wording can change without a rebuild.
package prompt

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-evalset/internal/domain"
)

// ErrInvalidTemplate indicates a template that is missing text or does not parse.
var ErrInvalidTemplate = fmt.Errorf("%w: invalid prompt template", domain.ErrConfiguration)

const defaultSystem = `You write evaluation data for a retrieval system over product reviews.
Given one review, write questions a shopper might ask that this review answers,
together with the answer the review supports. Questions must be answerable from
the review alone. Answers must be short and faithful to the review.
Reply with a JSON object of the form {"pairs":[{"question":"...","answer":"..."}]}.`

const defaultUser = `Write exactly {{.Count}} question/answer pairs for the review below.
{{- if .Examples}}

Questions in this style work well:
{{- range .Examples}}
- {{.}}
{{- end}}
{{- end}}

Review:
{{.Text}}`

// Template is a parsed prompt definition.
type Template struct {
	Name             string   `yaml:"name"`
	System           string   `yaml:"system"`
	User             string   `yaml:"user"`
	ExampleQuestions []string `yaml:"example_questions"`

	system *template.Template
	user   *template.Template
}

// Data is the value the system and user templates are executed against.
type Data struct {
	ItemID   string
	Text     string
	Fields   map[string]string
	Count    int
	Examples []string
}

// Default returns the built-in review QA template.
func Default() *Template {
	t, err := New("default", defaultSystem, defaultUser, nil)
	if err != nil {
		panic(err) // built-in text always parses
	}
	return t
}

// New parses system and user into a Template.
func New(name, system, user string, examples []string) (*Template, error) {
	t := &Template{Name: name, System: system, User: user, ExampleQuestions: examples}
	if err := t.compile(); err != nil {
		return nil, err
	}
	return t, nil
}

// Load reads a YAML template file.
func Load(path string) (*Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a YAML template document.
func Parse(raw []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}
	if err := t.compile(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Template) compile() error {
	if strings.TrimSpace(t.System) == "" || strings.TrimSpace(t.User) == "" {
		return fmt.Errorf("%w: system and user text are required", ErrInvalidTemplate)
	}
	var errs []error
	var err error
	if t.system, err = template.New("system").Option("missingkey=error").Parse(t.System); err != nil {
		errs = append(errs, err)
	}
	if t.user, err = template.New("user").Option("missingkey=error").Parse(t.User); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidTemplate, errors.Join(errs...))
	}
	return nil
}

// Render produces the system and user messages for one item. Example
// questions in params take precedence over the template's own examples.
func (t *Template) Render(item domain.CorpusItem, params domain.GenerationParams) (system, user string, err error) {
	data := Data{
		ItemID:   item.ID,
		Text:     item.Text(),
		Fields:   item.Fields,
		Count:    params.PairsPerItem,
		Examples: t.ExampleQuestions,
	}
	if len(params.ExampleQuestions) > 0 {
		data.Examples = params.ExampleQuestions
	}

	var buf bytes.Buffer
	if err := t.system.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render system prompt: %w", err)
	}
	system = buf.String()

	buf.Reset()
	if err := t.user.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render user prompt: %w", err)
	}
	return system, buf.String(), nil
}

// Hash returns a stable digest of the template text. Cache keys include it so
// a prompt change never serves stale generations.
func (t *Template) Hash() string {
	h := sha256.New()
	h.Write([]byte(t.System))
	h.Write([]byte{0})
	h.Write([]byte(t.User))
	for _, q := range t.ExampleQuestions {
		h.Write([]byte{0})
		h.Write([]byte(q))
	}
	return hex.EncodeToString(h.Sum(nil))
}
