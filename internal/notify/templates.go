package notify

import (
	"bytes"
	_ "embed"
	htmltemplate "html/template"
	"os"
	"strings"
	texttemplate "text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Template kinds.
const (
	KindNotice   = "notice"
	KindReminder = "reminder"
)

//go:embed templates.yaml
var defaultTemplates []byte

// TemplateData is what a mail template can reference.
type TemplateData struct {
	EmployerName string
	FirstName    string
	Name         string
	Email        string
	NoticeURL    string
	PortalURL    string
	PlanYearEnd  string
}

type templateSource struct {
	Subject string `yaml:"subject"`
	HTML    string `yaml:"html"`
	Text    string `yaml:"text"`
}

type compiled struct {
	subject *texttemplate.Template
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

// Templates renders the notice and reminder emails.
type Templates struct {
	set    map[string]compiled
	policy *bluemonday.Policy
}

// LoadTemplates returns the built-in templates, with any kinds defined in
// the YAML file at path replacing them. An empty path uses the built-ins.
func LoadTemplates(path string) (*Templates, error) {
	if path == "" {
		return ParseTemplates(defaultTemplates)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "notify: read templates %s", path)
	}
	return ParseTemplates(defaultTemplates, data)
}

// ParseTemplates compiles YAML template documents. Later documents
// override earlier ones per kind.
func ParseTemplates(docs ...[]byte) (*Templates, error) {
	sources := make(map[string]templateSource)
	for _, doc := range docs {
		var m map[string]templateSource
		if err := yaml.Unmarshal(doc, &m); err != nil {
			return nil, eris.Wrap(err, "notify: parse templates")
		}
		for kind, src := range m {
			sources[kind] = src
		}
	}

	t := &Templates{set: make(map[string]compiled, len(sources)), policy: bluemonday.UGCPolicy()}
	for kind, src := range sources {
		c, err := compile(kind, src)
		if err != nil {
			return nil, err
		}
		t.set[kind] = c
	}
	for _, kind := range []string{KindNotice, KindReminder} {
		if _, ok := t.set[kind]; !ok {
			return nil, eris.Errorf("notify: template %q missing", kind)
		}
	}
	return t, nil
}

func compile(kind string, src templateSource) (compiled, error) {
	var c compiled
	var err error
	if c.subject, err = texttemplate.New(kind + ".subject").Funcs(sprig.TxtFuncMap()).Parse(src.Subject); err != nil {
		return c, eris.Wrapf(err, "notify: parse %s subject", kind)
	}
	if c.html, err = htmltemplate.New(kind + ".html").Funcs(sprig.FuncMap()).Parse(src.HTML); err != nil {
		return c, eris.Wrapf(err, "notify: parse %s html", kind)
	}
	if c.text, err = texttemplate.New(kind + ".text").Funcs(sprig.TxtFuncMap()).Parse(src.Text); err != nil {
		return c, eris.Wrapf(err, "notify: parse %s text", kind)
	}
	return c, nil
}

// Render fills the subject and bodies of kind. The HTML body is sanitized,
// since templates may come from an operator-supplied file.
func (t *Templates) Render(kind string, data TemplateData) (Email, error) {
	c, ok := t.set[kind]
	if !ok {
		return Email{}, eris.Errorf("notify: unknown template %q", kind)
	}

	var subject, html, text bytes.Buffer
	if err := c.subject.Execute(&subject, data); err != nil {
		return Email{}, eris.Wrapf(err, "notify: render %s subject", kind)
	}
	if err := c.html.Execute(&html, data); err != nil {
		return Email{}, eris.Wrapf(err, "notify: render %s html", kind)
	}
	if err := c.text.Execute(&text, data); err != nil {
		return Email{}, eris.Wrapf(err, "notify: render %s text", kind)
	}

	return Email{
		Subject: strings.TrimSpace(subject.String()),
		HTML:    t.policy.Sanitize(html.String()),
		Text:    text.String(),
	}, nil
}
