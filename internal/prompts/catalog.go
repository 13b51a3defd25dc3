// Package prompts 提供内嵌的 YAML 提示词目录，模板通过 text/template 渲染。
package prompts

import (
	_ "embed"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	xerrors "agentic-browser/internal/errors"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Agent 描述单个智能体的系统提示词与目标。
type Agent struct {
	System string `yaml:"system"`
	Goal   string `yaml:"goal"`
}

type document struct {
	SystemBase string            `yaml:"system_base"`
	Agents     map[string]Agent  `yaml:"agents"`
	Templates  map[string]string `yaml:"templates"`
}

// Catalog 是解析后的只读提示词目录，可并发使用。
type Catalog struct {
	systemBase string
	agents     map[string]Agent
	templates  map[string]*template.Template
}

var funcs = template.FuncMap{
	"join": strings.Join,
}

// Parse 从 YAML 内容构造目录。
func Parse(raw []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "解析提示词目录失败")
	}
	c := &Catalog{
		systemBase: strings.TrimSpace(doc.SystemBase),
		agents:     doc.Agents,
		templates:  make(map[string]*template.Template, len(doc.Templates)),
	}
	for name, body := range doc.Templates {
		tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=zero").Parse(body)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "模板 "+name+" 无法解析")
		}
		c.templates[name] = tmpl
	}
	return c, nil
}

var loadDefault = sync.OnceValues(func() (*Catalog, error) {
	return Parse(catalogYAML)
})

// Default 返回内嵌目录。内嵌内容在编译期固定，解析失败视为程序错误。
func Default() *Catalog {
	c, err := loadDefault()
	if err != nil {
		panic(err)
	}
	return c
}

// SystemBase 返回所有智能体共享的基础系统提示词。
func (c *Catalog) SystemBase() string { return c.systemBase }

// System 返回指定智能体的系统提示词，未知智能体返回基础提示词。
func (c *Catalog) System(agent string) string {
	if a, ok := c.agents[agent]; ok && strings.TrimSpace(a.System) != "" {
		return strings.TrimSpace(a.System)
	}
	return c.systemBase
}

// Agent 返回智能体描述。
func (c *Catalog) Agent(name string) (Agent, bool) {
	a, ok := c.agents[name]
	return a, ok
}

// Render 渲染指定模板。
func (c *Catalog) Render(name string, data any) (string, error) {
	tmpl, ok := c.templates[name]
	if !ok {
		return "", xerrors.New(xerrors.CodeNotFound, "模板不存在: "+name)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", xerrors.Wrap(xerrors.CodeInternal, err, "渲染模板失败: "+name)
	}
	return strings.TrimSpace(sb.String()), nil
}

// MustRender 渲染模板，失败时 panic，仅用于模板名与数据结构在编译期固定的调用。
func (c *Catalog) MustRender(name string, data any) string {
	out, err := c.Render(name, data)
	if err != nil {
		panic(err)
	}
	return out
}
