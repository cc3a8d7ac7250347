package catalog

import "sort"

// Changes lists the model names that appeared and disappeared between two
// snapshots of a provider's list.
type Changes struct {
	Added   []string
	Removed []string
}

// Any reports whether the snapshots differ.
func (c Changes) Any() bool {
	return len(c.Added) > 0 || len(c.Removed) > 0
}

// Diff compares a provider's previous model list against a freshly fetched
// one by name. Both result slices are sorted.
func Diff(old, fresh []ModelDescriptor) Changes {
	oldSet := make(map[string]bool, len(old))
	for _, m := range old {
		oldSet[m.Name] = true
	}
	freshSet := make(map[string]bool, len(fresh))
	for _, m := range fresh {
		freshSet[m.Name] = true
	}

	var c Changes
	for name := range freshSet {
		if !oldSet[name] {
			c.Added = append(c.Added, name)
		}
	}
	for name := range oldSet {
		if !freshSet[name] {
			c.Removed = append(c.Removed, name)
		}
	}
	sort.Strings(c.Added)
	sort.Strings(c.Removed)
	return c
}

// Normalize drops descriptors with empty names and collapses duplicate names,
// keeping the first occurrence. Provider responses occasionally repeat
// entries across pages.
func Normalize(models []ModelDescriptor) []ModelDescriptor {
	seen := make(map[string]bool, len(models))
	out := models[:0:0]
	for _, m := range models {
		if m.Name == "" || seen[m.Name] {
			continue
		}
		seen[m.Name] = true
		out = append(out, m)
	}
	return out
}
