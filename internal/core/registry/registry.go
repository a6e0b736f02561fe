package registry

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Registry Types
// =============================================================================

// Declaration states which env files one service must load, low-to-high
// precedence. An empty EnvFiles list means the service takes no
// file-based configuration at all.
type Declaration struct {
	Service  string
	EnvFiles []string
}

// Registry is the parsed service registry. Iteration order follows the
// document's declaration order.
type Registry struct {
	order []string
	decls map[string]Declaration
}

// Services returns every declared service name in declaration order.
func (r *Registry) Services() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Declaration returns the declaration for a service, if declared.
func (r *Registry) Declaration(service string) (Declaration, bool) {
	d, ok := r.decls[service]
	return d, ok
}

// Len returns the number of declared services.
func (r *Registry) Len() int {
	return len(r.order)
}

// =============================================================================
// Parsing
// =============================================================================

// Parse parses a service registry document. This is a pure function:
// raw bytes in, validated registry or SchemaError out.
//
// The document is a single mapping from service name to an ordered
// list of relative env file names:
//
//	dashboard:
//	  - .env
//	  - .env.dashboard
//	vnc-desktop:
//	  - .env
//	consul: []
func Parse(content []byte) (*Registry, error) {
	if strings.TrimSpace(string(content)) == "" {
		return nil, NewSchemaError("", "registry document is empty", ErrEmptyRegistry)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, NewSchemaError("", fmt.Sprintf("invalid YAML: %v", err), ErrMalformedRegistry)
	}
	if len(doc.Content) == 0 {
		return nil, NewSchemaError("", "registry document is empty", ErrEmptyRegistry)
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, NewSchemaError("", "registry must be a mapping of service name to env file list", ErrMalformedRegistry)
	}

	reg := &Registry{decls: make(map[string]Declaration)}

	// Mapping nodes hold alternating key/value children.
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode := root.Content[i]
		valNode := root.Content[i+1]

		if keyNode.Kind != yaml.ScalarNode || keyNode.Value == "" {
			return nil, NewSchemaError("", fmt.Sprintf("line %d: service name must be a non-empty string", keyNode.Line), ErrMalformedRegistry)
		}
		service := keyNode.Value

		if _, exists := reg.decls[service]; exists {
			return nil, NewSchemaError(service, "service is declared more than once", ErrDuplicateService)
		}

		envFiles, err := parseEnvFileList(service, valNode)
		if err != nil {
			return nil, err
		}

		reg.order = append(reg.order, service)
		reg.decls[service] = Declaration{Service: service, EnvFiles: envFiles}
	}

	if len(reg.order) == 0 {
		return nil, NewSchemaError("", "registry declares no services", ErrEmptyRegistry)
	}

	return reg, nil
}

// parseEnvFileList parses one declaration value: a sequence of relative
// file names, or null for services without file-based configuration.
func parseEnvFileList(service string, node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return nil, nil
		}
		return nil, NewSchemaError(service, "env files must be a list, not a scalar", ErrMalformedRegistry)
	case yaml.SequenceNode:
		files := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode || item.Tag == "!!null" {
				return nil, NewSchemaError(service, fmt.Sprintf("line %d: env file entry must be a string", item.Line), ErrMalformedRegistry)
			}
			if err := ValidateEnvFileName(item.Value); err != nil {
				return nil, NewSchemaError(service, fmt.Sprintf("env file %q: %v", item.Value, err), ErrInvalidEnvFile)
			}
			files = append(files, item.Value)
		}
		return files, nil
	default:
		return nil, NewSchemaError(service, "env files must be a list of file names", ErrMalformedRegistry)
	}
}

// ValidateEnvFileName rejects anything that is not a plain relative
// file name. Path separators and traversal segments are refused so a
// declaration can never escape the deployment root.
func ValidateEnvFileName(name string) error {
	if name == "" {
		return fmt.Errorf("name is empty")
	}
	if name == "." || name == ".." {
		return fmt.Errorf("name must be a file, not a directory reference")
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("name must not contain path separators")
	}
	return nil
}

// =============================================================================
// Registry / Fragment Consistency
// =============================================================================

// CheckConsistency enforces the registry-to-fragment contract:
//
//   - the registry's service set and the union of services across all
//     fragments must be set-equal, in both directions
//   - a fragment that declares env_file entries for a service must agree
//     exactly (same files, same order) with that service's registry
//     declaration; the registry is the single source of truth for
//     env file layering
//
// fragmentServices is the union of service names across all fragments;
// fragmentEnvFiles maps service name to the env_file list declared in
// fragments, present only for services that declare one.
func CheckConsistency(reg *Registry, fragmentServices []string, fragmentEnvFiles map[string][]string) error {
	declared := make(map[string]bool, reg.Len())
	for _, s := range reg.Services() {
		declared[s] = true
	}

	inFragments := make(map[string]bool, len(fragmentServices))
	for _, s := range fragmentServices {
		inFragments[s] = true
	}

	var missing []string // in fragments, not in registry
	for s := range inFragments {
		if !declared[s] {
			missing = append(missing, s)
		}
	}
	sort.Strings(missing)
	if len(missing) > 0 {
		return NewSchemaError(strings.Join(missing, ", "),
			"service defined in compose fragments but not declared in the registry",
			ErrUnregisteredService)
	}

	var orphans []string // in registry, not in any fragment
	for s := range declared {
		if !inFragments[s] {
			orphans = append(orphans, s)
		}
	}
	sort.Strings(orphans)
	if len(orphans) > 0 {
		return NewSchemaError(strings.Join(orphans, ", "),
			"registry declares a service that no compose fragment defines",
			ErrOrphanDeclaration)
	}

	// Env file agreement, deterministic order.
	services := make([]string, 0, len(fragmentEnvFiles))
	for s := range fragmentEnvFiles {
		services = append(services, s)
	}
	sort.Strings(services)
	for _, s := range services {
		decl, ok := reg.Declaration(s)
		if !ok {
			continue // already reported above
		}
		if !equalStrings(decl.EnvFiles, fragmentEnvFiles[s]) {
			return NewSchemaError(s,
				fmt.Sprintf("fragments declare env files %v but the registry declares %v",
					fragmentEnvFiles[s], decl.EnvFiles),
				ErrEnvFileMismatch)
		}
	}

	return nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
