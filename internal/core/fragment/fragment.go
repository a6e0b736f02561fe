package fragment

import (
	"context"
	"sort"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Fragment Model
// =============================================================================

// ResourceKind distinguishes the shared resources a fragment may own.
type ResourceKind string

const (
	ResourceNetwork ResourceKind = "network"
	ResourceVolume  ResourceKind = "volume"
)

// Resource identifies one shared resource declaration.
type Resource struct {
	Kind ResourceKind
	Name string
}

// Fragment is the parsed model of one Compose fragment file: which
// services it defines and which shared resources it declares versus
// merely references.
type Fragment struct {
	// Name is the fragment's logical name ("base", "web", "observability").
	Name string

	// Path is the fragment file path, used in diagnostics.
	Path string

	// Services lists the service names the fragment defines, sorted.
	Services []string

	// ServiceEnvFiles holds the env_file lists declared inline for a
	// service, keyed by service name. Present only for services that
	// declare one; the registry consistency check compares these
	// against the authoritative declarations.
	ServiceEnvFiles map[string][]string

	// Networks and Volumes are the shared resources this fragment
	// declares (owns). External references are tracked separately and
	// never participate in conflict detection.
	Networks []string
	Volumes  []string

	ExternalNetworks []string
	ExternalVolumes  []string
}

// OwnedResources returns every shared resource this fragment declares,
// in deterministic order.
func (f *Fragment) OwnedResources() []Resource {
	out := make([]Resource, 0, len(f.Networks)+len(f.Volumes))
	for _, n := range f.Networks {
		out = append(out, Resource{Kind: ResourceNetwork, Name: n})
	}
	for _, v := range f.Volumes {
		out = append(out, Resource{Kind: ResourceVolume, Name: v})
	}
	return out
}

// DefinesService reports whether the fragment defines the named service.
func (f *Fragment) DefinesService(name string) bool {
	for _, s := range f.Services {
		if s == name {
			return true
		}
	}
	return false
}

// =============================================================================
// Parsing
// =============================================================================

// Parse parses one Compose fragment. Interpolation, normalization and
// service validation are all skipped: fragments legitimately contain
// unresolved ${HOMELAB_ROOT} placeholders and partial service
// definitions that only make sense after merging, so the only
// judgements made here are structural.
func Parse(name, path string, content []byte) (*Fragment, error) {
	if strings.TrimSpace(string(content)) == "" {
		return nil, NewParseError(path, "fragment file is empty", ErrEmptyFragment)
	}

	var dict map[string]interface{}
	if err := yaml.Unmarshal(content, &dict); err != nil {
		return nil, NewParseError(path, "invalid YAML syntax: "+err.Error(), ErrInvalidYAML)
	}
	if dict == nil {
		return nil, NewParseError(path, "fragment file is empty", ErrEmptyFragment)
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Filename: path,
				Content:  content,
				Config:   dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("homelab", false)
		opts.SkipValidation = true
		opts.SkipInterpolation = true
		opts.SkipNormalization = true
		opts.SkipExtends = true
		opts.SkipConsistencyCheck = true
		// env_file entries must not be resolved against the process
		// working directory - they are declarations to compare against
		// the registry, not files to open here.
		opts.SkipResolveEnvironment = true
	})
	if err != nil {
		return nil, NewParseError(path, err.Error(), ErrInvalidYAML)
	}

	if len(project.Services) == 0 {
		return nil, NewParseError(path, "fragment defines no services", ErrNoServices)
	}

	frag := &Fragment{
		Name:            name,
		Path:            path,
		ServiceEnvFiles: make(map[string][]string),
	}

	for svcName, svc := range project.Services {
		frag.Services = append(frag.Services, svcName)
		if len(svc.EnvFiles) > 0 {
			files := make([]string, 0, len(svc.EnvFiles))
			for _, ef := range svc.EnvFiles {
				files = append(files, normalizeEnvPath(ef.Path))
			}
			frag.ServiceEnvFiles[svcName] = files
		}
	}
	sort.Strings(frag.Services)

	for netName, net := range project.Networks {
		if bool(net.External) {
			frag.ExternalNetworks = append(frag.ExternalNetworks, netName)
		} else {
			frag.Networks = append(frag.Networks, netName)
		}
	}
	sort.Strings(frag.Networks)
	sort.Strings(frag.ExternalNetworks)

	for volName, vol := range project.Volumes {
		if bool(vol.External) {
			frag.ExternalVolumes = append(frag.ExternalVolumes, volName)
		} else {
			frag.Volumes = append(frag.Volumes, volName)
		}
	}
	sort.Strings(frag.Volumes)
	sort.Strings(frag.ExternalVolumes)

	return frag, nil
}

// normalizeEnvPath strips the leading "./" Compose authors habitually
// write, so fragment declarations compare cleanly against the registry.
func normalizeEnvPath(p string) string {
	return strings.TrimPrefix(p, "./")
}

// =============================================================================
// Service Union
// =============================================================================

// ServiceUnion returns the sorted union of service names across the
// given fragments, plus the union of inline env_file declarations.
// When several fragments declare env files for the same service, the
// lists are concatenated in fragment order with duplicates removed,
// mirroring how the runtime merges the files at dispatch.
func ServiceUnion(fragments []*Fragment) ([]string, map[string][]string) {
	seen := make(map[string]bool)
	var union []string
	envFiles := make(map[string][]string)

	for _, frag := range fragments {
		for _, s := range frag.Services {
			if !seen[s] {
				seen[s] = true
				union = append(union, s)
			}
		}
		for s, files := range frag.ServiceEnvFiles {
			for _, f := range files {
				if !containsString(envFiles[s], f) {
					envFiles[s] = append(envFiles[s], f)
				}
			}
		}
	}

	sort.Strings(union)
	return union, envFiles
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
