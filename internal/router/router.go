// Package router maps document names in a request to the physical
// indexes that hold their chunks.
package router

import (
	"context"
	"log/slog"
	"sort"

	"github.com/quarry-search/quarry/internal/registry"
)

// Router resolves document names to index names using the registry
// watcher's current snapshot.
type Router struct {
	watcher  *registry.Watcher
	registry *registry.Registry
	logger   *slog.Logger
}

// New creates a router over the watcher's snapshots. The registry
// handle is used for writes (Register).
func New(w *registry.Watcher, reg *registry.Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{watcher: w, registry: reg, logger: logger}
}

// Resolve maps active source names to text index names. An empty input
// selects every known text index. Unknown names are logged and dropped;
// duplicates collapse to one index.
func (r *Router) Resolve(activeSources []string) []string {
	return r.resolve(activeSources, r.watcher.Snapshot().Text, "text")
}

// ResolveImages is Resolve over the image index family.
func (r *Router) ResolveImages(activeSources []string) []string {
	return r.resolve(activeSources, r.watcher.Snapshot().Images, "images")
}

func (r *Router) resolve(activeSources []string, m map[string]string, kind string) []string {
	seen := make(map[string]bool)
	var out []string

	if len(activeSources) == 0 {
		for _, index := range m {
			if !seen[index] {
				seen[index] = true
				out = append(out, index)
			}
		}
		// Map iteration order is random; sorted output keeps fan-out
		// order and cache keys stable across identical calls.
		sort.Strings(out)
		return out
	}

	for _, source := range activeSources {
		index, ok := m[source]
		if !ok {
			r.logger.Warn("unknown_source_dropped", "source", source, "kind", kind)
			continue
		}
		if !seen[index] {
			seen[index] = true
			out = append(out, index)
		}
	}
	return out
}

// Lookup returns the index currently assigned to a document, or ""
// when the document is unknown.
func (r *Router) Lookup(documentName string, kind registry.IndexKind) string {
	snap := r.watcher.Snapshot()
	if kind == registry.KindImages {
		return snap.Images[documentName]
	}
	return snap.Text[documentName]
}

// Register assigns a document to an index: the document name is
// sanitized, collision-suffixed against the current snapshot, persisted
// to the registry, and the snapshot refreshed. Returns the chosen index
// name. When indexID is non-empty it is used verbatim (re-ingestion of
// a known document).
func (r *Router) Register(ctx context.Context, documentName, indexID string, kind registry.IndexKind) (string, error) {
	name := indexID
	if name == "" {
		snap := r.watcher.Snapshot()
		taken := snap.Text
		if kind == registry.KindImages {
			taken = snap.Images
		}
		used := make(map[string]bool, len(taken))
		for _, index := range taken {
			used[index] = true
		}

		base := SanitizeIndexName(documentName)
		if kind == registry.KindImages {
			base += "-images"
		}
		var err error
		name, err = NextAvailable(base, func(candidate string) bool {
			return used[candidate]
		})
		if err != nil {
			return "", err
		}
	}

	if err := r.registry.RegisterIndex(ctx, documentName, name, kind); err != nil {
		return "", err
	}
	if err := r.watcher.Reload(ctx); err != nil {
		return "", err
	}

	r.logger.Info("index_registered",
		"document", documentName, "index", name, "kind", string(kind))
	return name, nil
}
