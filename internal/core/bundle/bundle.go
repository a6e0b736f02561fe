package bundle

import (
	"fmt"
	"sort"

	"github.com/homelab-sh/homelab/internal/core/fragment"
)

// =============================================================================
// Bundle Types
// =============================================================================

// Bundle is the merged, ordered fragment selection for one invocation.
// It is constructed fresh per invocation and never persisted.
type Bundle struct {
	// Names holds the fragment logical names in merge order, base first.
	Names []string

	// Files holds the fragment file paths in the same order. This is
	// the exact -f sequence handed to the runtime: later files override
	// earlier ones for overlapping service keys.
	Files []string

	fragments []*fragment.Fragment
}

// Fragments returns the bundle's fragments in merge order.
func (b *Bundle) Fragments() []*fragment.Fragment {
	return b.fragments
}

// Services returns the sorted union of services across the bundle's
// fragments.
func (b *Bundle) Services() []string {
	union, _ := fragment.ServiceUnion(b.fragments)
	return union
}

// ServiceOrigins maps each service to the fragments defining it, in
// merge order. A service with more than one origin is overridden: the
// last fragment listed wins for overlapping keys.
func (b *Bundle) ServiceOrigins() map[string][]string {
	origins := make(map[string][]string)
	for _, frag := range b.fragments {
		for _, s := range frag.Services {
			origins[s] = append(origins[s], frag.Name)
		}
	}
	return origins
}

// =============================================================================
// Composition
// =============================================================================

// Compose builds the effective bundle for a fragment selection.
//
// Rules:
//   - the base fragment is always included and always first
//   - duplicate selections are de-duplicated, keeping the first
//     occurrence, so composing the same selection twice is idempotent
//   - an unknown fragment name fails before anything else runs
//   - no two fragments may declare the same shared resource; external
//     references do not count as declarations
func Compose(selection []string, available map[string]*fragment.Fragment, base string) (*Bundle, error) {
	baseFrag, ok := available[base]
	if !ok {
		return nil, NewCompositionError(base, "base fragment is not present in the workspace", ErrMissingBase)
	}

	b := &Bundle{}
	seen := map[string]bool{base: true}
	b.Names = append(b.Names, base)
	b.Files = append(b.Files, baseFrag.Path)
	b.fragments = append(b.fragments, baseFrag)

	for _, name := range selection {
		if seen[name] {
			continue
		}
		frag, ok := available[name]
		if !ok {
			known := availableNames(available)
			return nil, NewCompositionError(name,
				fmt.Sprintf("fragment is not present in the workspace (available: %v)", known),
				ErrUnknownFragment)
		}
		seen[name] = true
		b.Names = append(b.Names, name)
		b.Files = append(b.Files, frag.Path)
		b.fragments = append(b.fragments, frag)
	}

	if err := DetectConflicts(b.fragments); err != nil {
		return nil, err
	}

	return b, nil
}

// DetectConflicts verifies that every shared resource (network or named
// volume) is declared by at most one fragment. This is checked
// statically, before the runtime is ever invoked: two fragments both
// declaring the homelab network would otherwise surface as a runtime
// error after partial container creation.
func DetectConflicts(fragments []*fragment.Fragment) error {
	owner := make(map[fragment.Resource]*fragment.Fragment)

	for _, frag := range fragments {
		for _, res := range frag.OwnedResources() {
			if first, taken := owner[res]; taken {
				return NewCompositionError(res.Name,
					fmt.Sprintf("%s %q is declared by both %s and %s; declare it once in the base fragment and reference it as external elsewhere",
						res.Kind, res.Name, first.Path, frag.Path),
					ErrResourceConflict)
			}
			owner[res] = frag
		}
	}

	return nil
}

func availableNames(available map[string]*fragment.Fragment) []string {
	names := make([]string, 0, len(available))
	for name := range available {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
