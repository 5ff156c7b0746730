package workflow

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Template is a system/user prompt pair.
type Template struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Prompts holds the templates for every LLM tool.
type Prompts struct {
	ScriptGeneration        Template `yaml:"script_generation"`
	SingleShotStoryboard    Template `yaml:"single_shot_storyboard"`
	Storyboard              Template `yaml:"storyboard"`
	ShotPrompts             Template `yaml:"shot_prompts"`
	ImageToDescription      Template `yaml:"image_to_description"`
	ImageToStyleDescription Template `yaml:"image_to_style_description"`
	ExtraDescription        string   `yaml:"extra_description"`
}

// DefaultPrompts parses the embedded templates.
func DefaultPrompts() (*Prompts, error) {
	return ParsePrompts(defaultPrompts)
}

// ParsePrompts parses a YAML template document.
func ParsePrompts(data []byte) (*Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	if p.ScriptGeneration.System == "" {
		return nil, fmt.Errorf("parse prompts: script_generation.system is empty")
	}
	return &p, nil
}

// Render replaces every {key} in tmpl with vars[key]. Unknown placeholders are left as is.
func Render(tmpl string, vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", vars[k])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// joinOrNone joins items with a full-width comma, or returns 无 when empty.
func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "无"
	}
	return strings.Join(items, "，")
}

// neighbourShots renders at most three neighbouring shot descriptions as a list.
func neighbourShots(label string, shots []string) string {
	if len(shots) == 0 {
		return "无"
	}
	if len(shots) > 3 {
		shots = shots[:3]
	}
	lines := make([]string, len(shots))
	for i, desc := range shots {
		lines[i] = fmt.Sprintf("- %s%d：%s", label, i+1, desc)
	}
	return strings.Join(lines, "\n")
}
