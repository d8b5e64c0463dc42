package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/briangreenhill/devkit/rest"
	"gopkg.in/yaml.v3"
)

// Rules is the pre-cache section of the rules file. Unset members leave the
// matching option untouched.
//
//	enabled: true
//	endpoints: "/(media|stream|users)/([0-9]+|recent)\\?"
//	eligible: [uploader, cover_media]
//	endpoint_gates:
//	  uploader: "/media/"
//	name_replacements:
//	  uploader: user
type Rules struct {
	Enabled          *bool             `yaml:"enabled"`
	FilterSharding   *bool             `yaml:"filter_sharding"`
	ShardingPattern  *string           `yaml:"sharding_pattern"`
	Endpoints        *string           `yaml:"endpoints"`
	Eligible         []string          `yaml:"eligible"`
	EndpointGates    map[string]string `yaml:"endpoint_gates"`
	NameReplacements map[string]string `yaml:"name_replacements"`
}

// LoadRules reads a YAML rules file and expands environment variables.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	r := &Rules{}
	if err := yaml.Unmarshal([]byte(expanded), r); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return r, nil
}

// Apply compiles the rules into o. An empty endpoints pattern removes the
// global endpoint gate. o is unchanged when any pattern fails to compile.
func (r *Rules) Apply(o *rest.Options) error {
	next := o.Clone()

	if r.Enabled != nil {
		next.PreCacheEnabled = *r.Enabled
	}
	if r.FilterSharding != nil {
		next.FilterSharding = *r.FilterSharding
	}
	if r.ShardingPattern != nil {
		p, err := regexp.Compile(*r.ShardingPattern)
		if err != nil {
			return fmt.Errorf("sharding_pattern: %w", err)
		}
		next.ShardingPattern = p
	}
	if r.Endpoints != nil {
		next.Endpoints = nil
		if *r.Endpoints != "" {
			p, err := regexp.Compile(*r.Endpoints)
			if err != nil {
				return fmt.Errorf("endpoints: %w", err)
			}
			next.Endpoints = p
		}
	}
	if r.Eligible != nil {
		next.EmbeddedProperties = append([]string(nil), r.Eligible...)
	}
	if r.EndpointGates != nil {
		gates := make(map[string]*regexp.Regexp, len(r.EndpointGates))
		for name, expr := range r.EndpointGates {
			p, err := regexp.Compile(expr)
			if err != nil {
				return fmt.Errorf("endpoint_gates.%s: %w", name, err)
			}
			gates[name] = p
		}
		next.PropertiesPerEndpoint = gates
	}
	if r.NameReplacements != nil {
		next.NameReplacements = make(map[string]string, len(r.NameReplacements))
		for k, v := range r.NameReplacements {
			next.NameReplacements[k] = v
		}
	}

	*o = next
	return nil
}
