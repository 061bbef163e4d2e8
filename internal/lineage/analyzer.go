package lineage

import (
	"fmt"
	"hash/fnv"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/ideaflow/ideaflow/internal/models"
	"github.com/ideaflow/ideaflow/internal/store"
)

const defaultCacheSize = 128

// Analyzer memoizes chain analysis per snapshot version and seen set.
// Returned chains are shared between callers and must be treated as read-only.
type Analyzer struct {
	graphs *lru.Cache[uint64, *Graph]
	chains *lru.Cache[string, []ContentChain]
	logger *zap.Logger
}

// NewAnalyzer creates an analyzer keeping up to size results.
func NewAnalyzer(size int, logger *zap.Logger) (*Analyzer, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	graphs, err := lru.New[uint64, *Graph](size)
	if err != nil {
		return nil, fmt.Errorf("lineage: graph cache: %w", err)
	}
	chains, err := lru.New[string, []ContentChain](size)
	if err != nil {
		return nil, fmt.Errorf("lineage: chain cache: %w", err)
	}
	return &Analyzer{graphs: graphs, chains: chains, logger: logger}, nil
}

// Graph returns the lineage graph of the snapshot.
func (a *Analyzer) Graph(snap *store.Snapshot) *Graph {
	if g, ok := a.graphs.Get(snap.Version()); ok {
		return g
	}
	g := NewGraph(snap.Posts(), snap.Ideas())
	a.graphs.Add(snap.Version(), g)
	return g
}

// Chains returns the ranked chains of every post and idea in the snapshot.
func (a *Analyzer) Chains(snap *store.Snapshot, seen models.IDSet) []ContentChain {
	key := fmt.Sprintf("%d/%x", snap.Version(), fingerprint(seen))
	if chains, ok := a.chains.Get(key); ok {
		return chains
	}
	g := a.Graph(snap)
	chains := g.Chains(g.Refs(), seen)
	a.chains.Add(key, chains)
	a.logger.Debug("chains analyzed",
		zap.Uint64("version", snap.Version()),
		zap.Int("chains", len(chains)))
	return chains
}

// ChainsFor ranks the chains reached from the given items only.
func (a *Analyzer) ChainsFor(snap *store.Snapshot, items []models.ContentRef, seen models.IDSet) []ContentChain {
	return a.Graph(snap).Chains(items, seen)
}

// ContextFor places ref within the chains of the snapshot.
func (a *Analyzer) ContextFor(snap *store.Snapshot, ref models.ContentRef, seen models.IDSet) ChainContext {
	return ChainContextFor(ref, a.Chains(snap, seen), seen)
}

func fingerprint(seen models.IDSet) uint64 {
	h := fnv.New64a()
	for _, id := range seen.Slice() {
		_, _ = h.Write([]byte(id))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}
