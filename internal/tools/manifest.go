// Package tools defines the tool contract, the manifest-driven parameter
// validation framework, and the registry that discovers and owns tool
// instances.
package tools

import (
	"fmt"
	"strings"
)

// Category tags a tool for listing and discovery. It is a label, not a
// behavior: tools differ only in their manifest data and Execute body.
type Category string

const (
	CategoryUtility     Category = "utility"
	CategoryData        Category = "data"
	CategoryWeb         Category = "web"
	CategoryDevelopment Category = "development"
	CategoryAutomation  Category = "automation"
	CategorySystem      Category = "system"
	CategoryKnowledge   Category = "knowledge"
)

// TrustLevel grades how strictly the security middleware treats a tool.
type TrustLevel string

const (
	TrustCore      TrustLevel = "core"
	TrustVerified  TrustLevel = "verified"
	TrustUntrusted TrustLevel = "untrusted"
)

// SecurityScope names one class of access a tool declares.
type SecurityScope string

const (
	ScopeReadOnly      SecurityScope = "read_only"
	ScopeReadWrite     SecurityScope = "read_write"
	ScopeSystemModify  SecurityScope = "system_modify"
	ScopeNetworkAccess SecurityScope = "network_access"
	ScopeProcessSpawn  SecurityScope = "process_spawn"
)

// ResourceProfile hints at the runtime cost of a tool body. IoIntensive
// and NetworkIntensive tools must honor context cancellation.
type ResourceProfile string

const (
	ProfileCPULight         ResourceProfile = "cpu_light"
	ProfileCPUIntensive     ResourceProfile = "cpu_intensive"
	ProfileIOIntensive      ResourceProfile = "io_intensive"
	ProfileNetworkIntensive ResourceProfile = "network_intensive"
)

// TypeTag names the wire type of one parameter.
type TypeTag string

const (
	TypeString  TypeTag = "string"
	TypeInteger TypeTag = "integer"
	TypeNumber  TypeTag = "number"
	TypeBool    TypeTag = "bool"
	TypeEnum    TypeTag = "enum"
	TypeArray   TypeTag = "array"
	TypeObject  TypeTag = "object"
)

// ParameterSpec declares one tool parameter. Min and Max apply to numeric
// types only; EnumValues applies to the enum type only.
type ParameterSpec struct {
	Name        string   `yaml:"name" json:"name"`
	Type        TypeTag  `yaml:"type" json:"type"`
	Required    bool     `yaml:"required" json:"required"`
	Default     any      `yaml:"default,omitempty" json:"default,omitempty"`
	EnumValues  []string `yaml:"enum_values,omitempty" json:"enum_values,omitempty"`
	Min         *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max         *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
}

// Manifest is the immutable declaration of a tool: identity, access
// shape, and parameter schema. Differences between tools live here, not
// in type hierarchies.
type Manifest struct {
	Name                 string          `yaml:"name" json:"name"`
	Description          string          `yaml:"description" json:"description"`
	Category             Category        `yaml:"category" json:"category"`
	RequiresConfirmation bool            `yaml:"requires_confirmation" json:"requires_confirmation"`
	Trust                TrustLevel      `yaml:"trust_level" json:"trust_level"`
	Scopes               []SecurityScope `yaml:"security_scope" json:"security_scope"`
	Profile              ResourceProfile `yaml:"resource_profile" json:"resource_profile"`
	Parameters           []ParameterSpec `yaml:"parameters" json:"parameters"`
}

// HasScope checks whether the manifest declares the scope.
func (m *Manifest) HasScope(s SecurityScope) bool {
	for _, sc := range m.Scopes {
		if sc == s {
			return true
		}
	}
	return false
}

// Validate checks the structural invariants of a manifest.
func (m *Manifest) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("tool name is required")
	}
	switch m.Category {
	case CategoryUtility, CategoryData, CategoryWeb, CategoryDevelopment,
		CategoryAutomation, CategorySystem, CategoryKnowledge:
	default:
		return fmt.Errorf("tool %s: unknown category %q", m.Name, m.Category)
	}
	switch m.Trust {
	case TrustCore, TrustVerified, TrustUntrusted:
	default:
		return fmt.Errorf("tool %s: unknown trust level %q", m.Name, m.Trust)
	}
	seen := make(map[string]bool, len(m.Parameters))
	for _, p := range m.Parameters {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("tool %s: parameter with empty name", m.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("tool %s: duplicate parameter %q", m.Name, p.Name)
		}
		seen[p.Name] = true
		switch p.Type {
		case TypeString, TypeInteger, TypeNumber, TypeBool, TypeArray, TypeObject:
		case TypeEnum:
			if len(p.EnumValues) == 0 {
				return fmt.Errorf("tool %s: enum parameter %q declares no values", m.Name, p.Name)
			}
		default:
			return fmt.Errorf("tool %s: parameter %q has unknown type %q", m.Name, p.Name, p.Type)
		}
		if p.Required && p.Default != nil {
			return fmt.Errorf("tool %s: required parameter %q must not carry a default", m.Name, p.Name)
		}
	}
	return nil
}

// ManifestSummary is the listing view of a registered tool.
type ManifestSummary struct {
	Name                 string   `json:"name"`
	Description          string   `json:"description"`
	Category             Category `json:"category"`
	RequiresConfirmation bool     `json:"requires_confirmation"`
	ParameterNames       []string `json:"parameter_names"`
}

// Summary projects the manifest into its listing view.
func (m *Manifest) Summary() ManifestSummary {
	names := make([]string, 0, len(m.Parameters))
	for _, p := range m.Parameters {
		names = append(names, p.Name)
	}
	return ManifestSummary{
		Name:                 m.Name,
		Description:          m.Description,
		Category:             m.Category,
		RequiresConfirmation: m.RequiresConfirmation,
		ParameterNames:       names,
	}
}
