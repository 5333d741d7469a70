package fieldtypes

import (
	"embed"
	"encoding/json"
	"sync"
)

//go:embed fieldTypes.json
var fieldTypesFS embed.FS

// FieldTypeDefinition represents a logical field type configuration
type FieldTypeDefinition struct {
	SQLType           *string  `json:"sqlType"`
	Label             string   `json:"label"`
	Description       string   `json:"description"`
	IsTextual         bool     `json:"isTextual,omitempty"`
	IsSearchable      bool     `json:"isSearchable,omitempty"`
	IsGroupable       bool     `json:"isGroupable,omitempty"`
	IsSummable        bool     `json:"isSummable,omitempty"`
	IsFK              bool     `json:"isFK,omitempty"`
	IsMultiValued     bool     `json:"isMultiValued,omitempty"`
	ParseLayouts      []string `json:"parseLayouts,omitempty"`
	ValidationPattern *string  `json:"validationPattern,omitempty"`
	ValidationMessage *string  `json:"validationMessage,omitempty"`
}

// Registry holds field type definitions
type Registry struct {
	types map[string]FieldTypeDefinition
	mu    sync.RWMutex
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// GetRegistry returns the singleton field types registry
func GetRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = &Registry{
			types: make(map[string]FieldTypeDefinition),
		}
		_ = defaultRegistry.loadFromEmbedded()
	})
	return defaultRegistry
}

// loadFromEmbedded loads field types from the embedded JSON file
func (r *Registry) loadFromEmbedded() error {
	data, err := fieldTypesFS.ReadFile("fieldTypes.json")
	if err != nil {
		return err
	}

	var types map[string]FieldTypeDefinition
	if err := json.Unmarshal(data, &types); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = types
	return nil
}

// Get returns a field type definition by name
func (r *Registry) Get(typeName string) (FieldTypeDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.types[typeName]
	return def, ok
}

// GetSQLType returns the SQL column type for a logical type name
func (r *Registry) GetSQLType(typeName string) string {
	def, ok := r.Get(typeName)
	if !ok || def.SQLType == nil {
		return ""
	}
	return *def.SQLType
}

// IsTextual returns whether a logical type stores arbitrary text
func (r *Registry) IsTextual(typeName string) bool {
	def, ok := r.Get(typeName)
	if !ok {
		return false
	}
	return def.IsTextual
}

// GetValidationPattern returns the validation regex pattern and message for a type
func (r *Registry) GetValidationPattern(typeName string) (pattern string, message string) {
	def, ok := r.Get(typeName)
	if !ok {
		return "", ""
	}
	if def.ValidationPattern != nil {
		pattern = *def.ValidationPattern
	}
	if def.ValidationMessage != nil {
		message = *def.ValidationMessage
	}
	return pattern, message
}

// GetAll returns all registered field types
func (r *Registry) GetAll() map[string]FieldTypeDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]FieldTypeDefinition, len(r.types))
	for k, v := range r.types {
		result[k] = v
	}
	return result
}

// GetSQLType is a package-level convenience over the singleton registry
func GetSQLType(typeName string) string {
	return GetRegistry().GetSQLType(typeName)
}
