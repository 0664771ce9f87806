// Package preset 路由预案：一组 output -> input 映射，按名称一次性下发
package preset

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/taoyao-code/hdmi-matrix/internal/protocol/hdmx"
)

// ErrNotFound 预案不存在
var ErrNotFound = errors.New("preset not found")

// Preset 单个预案
type Preset struct {
	Name        string      `yaml:"-" json:"name"`
	Description string      `yaml:"description" json:"description,omitempty"`
	Routes      map[int]int `yaml:"routes" json:"routes"` // output -> input
}

// Route 有序路由项
type Route struct {
	Output int `json:"output"`
	Input  int `json:"input"`
}

// Ordered 按输出口升序返回路由
func (p *Preset) Ordered() []Route {
	out := make([]Route, 0, len(p.Routes))
	for o, i := range p.Routes {
		out = append(out, Route{Output: o, Input: i})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Output < out[b].Output })
	return out
}

// Validate 校验所有路由端口，任意一条非法即返回
func (p *Preset) Validate(maxPorts int) error {
	if len(p.Routes) == 0 {
		return fmt.Errorf("%w: preset %q has no routes", hdmx.ErrInvalidArgument, p.Name)
	}
	for _, r := range p.Ordered() {
		if err := (hdmx.ChangePort{Output: hdmx.Port(r.Output), Input: hdmx.Port(r.Input)}).Validate(maxPorts); err != nil {
			return fmt.Errorf("preset %q: %w", p.Name, err)
		}
	}
	return nil
}

// Set 预案集合
type Set struct {
	Presets map[string]*Preset `yaml:"presets"`
}

// Empty 空集合
func Empty() *Set {
	return &Set{Presets: map[string]*Preset{}}
}

// Load 从 YAML 文件加载预案
func Load(path string) (*Set, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	return Parse(b)
}

// Parse 解析 YAML 内容
func Parse(b []byte) (*Set, error) {
	var s Set
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("unmarshal presets: %w", err)
	}
	if s.Presets == nil {
		s.Presets = map[string]*Preset{}
	}
	for name, p := range s.Presets {
		if p == nil {
			return nil, fmt.Errorf("preset %q is empty", name)
		}
		p.Name = name
	}
	return &s, nil
}

// Validate 校验全部预案
func (s *Set) Validate(maxPorts int) error {
	for _, name := range s.Names() {
		if err := s.Presets[name].Validate(maxPorts); err != nil {
			return err
		}
	}
	return nil
}

// Get 按名称获取
func (s *Set) Get(name string) (*Preset, error) {
	if s != nil {
		if p, ok := s.Presets[name]; ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Names 名称升序
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Presets))
	for n := range s.Presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// List 按名称升序返回全部预案
func (s *Set) List() []*Preset {
	names := s.Names()
	out := make([]*Preset, 0, len(names))
	for _, n := range names {
		out = append(out, s.Presets[n])
	}
	return out
}
