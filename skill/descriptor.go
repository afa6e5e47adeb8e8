package skill

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/botmesh/core"
)

const maxDescriptorBytes = 1 << 20

// Descriptor is the data-only declaration of a skill, typically loaded
// from YAML.
type Descriptor struct {
	Type                 string                     `yaml:"type"`
	Description          string                     `yaml:"description,omitempty"`
	RequiredParameters   []core.ParameterDescriptor `yaml:"required_parameter,omitempty"`
	OptionalParameters   []core.ParameterDescriptor `yaml:"optional_parameter,omitempty"`
	DynamicParameters    []core.ParameterDescriptor `yaml:"dynamic_parameter,omitempty"`
	TakeOverParameter    bool                       `yaml:"take_over_parameter,omitempty"`
	ClearContextOnFinish *bool                      `yaml:"clear_context_on_finish,omitempty"`

	Begin   string `yaml:"begin,omitempty"`
	Finish  string `yaml:"finish,omitempty"`
	OnAbort string `yaml:"on_abort,omitempty"`
	OnAbend string `yaml:"on_abend,omitempty"`

	// FinishMessage is replied when the skill completes and no finish hook
	// is set. Messages may use templates over confirmed, heard, global and
	// intent.
	FinishMessage []core.Message `yaml:"finish_message,omitempty"`
}

// Validate checks the structural rules of a descriptor.
func (d *Descriptor) Validate() error {
	if strings.TrimSpace(d.Type) == "" {
		return errors.New("skill type is required")
	}
	seen := map[string]bool{}
	for _, group := range [][]core.ParameterDescriptor{d.RequiredParameters, d.OptionalParameters, d.DynamicParameters} {
		for _, p := range group {
			if err := validateParameter(p); err != nil {
				return fmt.Errorf("skill %s: %w", d.Type, err)
			}
			if seen[p.Name] {
				return fmt.Errorf("skill %s: duplicate parameter %s", d.Type, p.Name)
			}
			seen[p.Name] = true
		}
	}
	return nil
}

func validateParameter(p core.ParameterDescriptor) error {
	if p.Name == "" {
		return errors.New("parameter name is required")
	}
	if p.List != nil && p.List.Order != "" && p.List.Order != "new" && p.List.Order != "old" {
		return fmt.Errorf("parameter %s: list order must be new or old", p.Name)
	}
	for _, sp := range p.SubParameter {
		if err := validateParameter(sp); err != nil {
			return fmt.Errorf("parameter %s: %w", p.Name, err)
		}
	}
	return nil
}

// ParseDescriptor decodes and validates a YAML descriptor.
func ParseDescriptor(b []byte) (*Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("invalid skill YAML: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// LoadFile reads one descriptor file.
func LoadFile(path string) (*Descriptor, error) {
	st, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	if !st.Mode().IsRegular() {
		return nil, fmt.Errorf("%s must be a regular file", path)
	}
	if st.Size() > maxDescriptorBytes {
		return nil, fmt.Errorf("%s too large (max %d bytes)", path, maxDescriptorBytes)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	d, err := ParseDescriptor(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// LoadDir reads every *.yaml and *.yml file of dir, sorted by name.
func LoadDir(dir string) ([]*Descriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]*Descriptor, 0, len(names))
	for _, n := range names {
		d, err := LoadFile(filepath.Join(dir, n))
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// RegisterDescriptor registers a skill built from d. Hook keys are
// resolved once up front so a missing function fails at startup rather
// than mid conversation.
func (r *Registry) RegisterDescriptor(d *Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if _, err := r.build(d); err != nil {
		return fmt.Errorf("skill %s: %w", d.Type, err)
	}
	r.Register(d.Type, func(core.Intent) (*core.Skill, error) {
		return r.build(d)
	})
	r.opts.Logger.Debug("Skill registered", "skill", d.Type)
	return nil
}

// LoadDir registers every descriptor found in dir and returns their types.
func (r *Registry) LoadDir(dir string) ([]string, error) {
	ds, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	types := make([]string, 0, len(ds))
	for _, d := range ds {
		if err := r.RegisterDescriptor(d); err != nil {
			return nil, err
		}
		types = append(types, d.Type)
	}
	return types, nil
}

func (r *Registry) build(d *Descriptor) (*core.Skill, error) {
	s := &core.Skill{
		Type:                 d.Type,
		TakeOverParameter:    d.TakeOverParameter,
		ClearContextOnFinish: d.ClearContextOnFinish,
	}

	for _, group := range []struct {
		typ   core.ParameterType
		descs []core.ParameterDescriptor
	}{
		{core.RequiredParameter, d.RequiredParameters},
		{core.OptionalParameter, d.OptionalParameters},
		{core.DynamicParameter, d.DynamicParameters},
	} {
		params := make([]*core.Parameter, 0, len(group.descs))
		for _, pd := range group.descs {
			p, err := r.Parameter(pd)
			if err != nil {
				return nil, fmt.Errorf("parameter %s: %w", pd.Name, err)
			}
			params = append(params, p)
		}
		s.SetParameters(group.typ, params)
	}

	var err error
	if s.Begin, err = resolve[core.HookFunc](r, d.Begin); err != nil {
		return nil, err
	}
	if s.Finish, err = resolve[core.HookFunc](r, d.Finish); err != nil {
		return nil, err
	}
	if s.OnAbort, err = resolve[core.HookFunc](r, d.OnAbort); err != nil {
		return nil, err
	}
	if s.OnAbend, err = resolve[core.AbendFunc](r, d.OnAbend); err != nil {
		return nil, err
	}

	if s.Finish == nil && len(d.FinishMessage) > 0 {
		msgs := d.FinishMessage
		s.Finish = func(ctx context.Context, bot core.Bot, _ *core.Event, conv *core.Context) error {
			rendered, err := RenderMessages(msgs, conv)
			if err != nil {
				return err
			}
			return bot.Reply(ctx, rendered...)
		}
	}
	return s, nil
}
