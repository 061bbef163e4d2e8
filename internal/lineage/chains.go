package lineage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ideaflow/ideaflow/internal/models"
)

// ChainNode wraps one post or idea of a chain.
type ChainNode struct {
	Ref          models.ContentRef `json:"ref"`
	Post         *models.Post      `json:"post,omitempty"`
	Idea         *models.Idea      `json:"idea,omitempty"`
	Level        int               `json:"level"`
	SupportCount int               `json:"supportCount"`
	CreatedAt    time.Time         `json:"createdAt"`
	Seen         bool              `json:"seen"`
}

// ContentChain is every item reachable from one canonical root.
type ContentChain struct {
	Root           models.ContentRef `json:"root"`
	Nodes          []ChainNode       `json:"nodes"`
	MaxSupport     int               `json:"maxSupport"`
	LatestActivity time.Time         `json:"latestActivity"`
	NodeCount      int               `json:"nodeCount"`
	HasUnseen      bool              `json:"hasUnseen"`
}

// AnalyzeChains groups posts and ideas into chains, one per distinct root.
// Seen entries are ContentRef keys, see models.RefSet.
func AnalyzeChains(posts []models.Post, ideas []models.Idea, seen models.IDSet) []ContentChain {
	g := NewGraph(posts, ideas)
	return g.Chains(g.Refs(), seen)
}

// Chains builds the chains whose roots are reached from items. Chains are
// ordered with unseen content first, then by max support and latest activity,
// both descending.
func (g *Graph) Chains(items []models.ContentRef, seen models.IDSet) []ContentChain {
	built := make(map[string]bool)
	var chains []ContentChain
	for _, item := range items {
		if !g.Has(item) {
			continue
		}
		root := g.FindRoot(item)
		if built[root.Key()] {
			continue
		}
		built[root.Key()] = true
		chains = append(chains, g.buildChain(root, seen))
	}

	sort.SliceStable(chains, func(i, j int) bool {
		a, b := chains[i], chains[j]
		if a.HasUnseen != b.HasUnseen {
			return a.HasUnseen
		}
		if a.MaxSupport != b.MaxSupport {
			return a.MaxSupport > b.MaxSupport
		}
		if !a.LatestActivity.Equal(b.LatestActivity) {
			return a.LatestActivity.After(b.LatestActivity)
		}
		return a.Root.Key() < b.Root.Key()
	})
	return chains
}

func (g *Graph) buildChain(root models.ContentRef, seen models.IDSet) ContentChain {
	nodes := g.ExpandForward(root)
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Level != nodes[j].Level {
			return nodes[i].Level < nodes[j].Level
		}
		return nodes[i].CreatedAt.After(nodes[j].CreatedAt)
	})

	chain := ContentChain{Root: root, Nodes: nodes, NodeCount: len(nodes)}
	for i := range nodes {
		nodes[i].Seen = seen.Has(nodes[i].Ref.Key())
		if !nodes[i].Seen {
			chain.HasUnseen = true
		}
		if nodes[i].SupportCount > chain.MaxSupport {
			chain.MaxSupport = nodes[i].SupportCount
		}
		if nodes[i].CreatedAt.After(chain.LatestActivity) {
			chain.LatestActivity = nodes[i].CreatedAt
		}
	}
	return chain
}

// PickRelevantNode returns the newest node the viewer has not seen. When every
// node was seen it returns the best supported one, the earliest in chain order
// on ties.
func PickRelevantNode(chain ContentChain, seen models.IDSet) (ChainNode, bool) {
	if len(chain.Nodes) == 0 {
		return ChainNode{}, false
	}

	var newest *ChainNode
	for i := range chain.Nodes {
		node := &chain.Nodes[i]
		if seen.Has(node.Ref.Key()) {
			continue
		}
		if newest == nil || node.CreatedAt.After(newest.CreatedAt) {
			newest = node
		}
	}
	if newest != nil {
		return *newest, true
	}

	best := chain.Nodes[0]
	for _, node := range chain.Nodes[1:] {
		if node.SupportCount > best.SupportCount {
			best = node
		}
	}
	return best, true
}

// SummarizeEvolution describes the chain composition, e.g. "2 posts → 1 idea".
func SummarizeEvolution(chain ContentChain) string {
	if len(chain.Nodes) == 0 {
		return ""
	}
	if len(chain.Nodes) == 1 {
		return "Original " + string(chain.Nodes[0].Ref.Type)
	}

	var posts, ideas int
	for _, node := range chain.Nodes {
		switch node.Ref.Type {
		case models.ContentPost:
			posts++
		case models.ContentIdea:
			ideas++
		}
	}

	var parts []string
	if posts > 0 {
		parts = append(parts, plural(posts, "post"))
	}
	if ideas > 0 {
		parts = append(parts, plural(ideas, "idea"))
	}
	return strings.Join(parts, " → ")
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// Chain positions.
const (
	PositionRoot   = "root"
	PositionMiddle = "middle"
	PositionLatest = "latest"
)

// ChainContext places one item inside its chain.
type ChainContext struct {
	IsInChain   bool              `json:"isInChain"`
	Root        models.ContentRef `json:"root"`
	Position    string            `json:"position,omitempty"`
	NodesBefore int               `json:"nodesBefore"`
	NodesAfter  int               `json:"nodesAfter"`
	ChainLength int               `json:"chainLength"`
	MaxSupport  int               `json:"maxSupport"`
	HasUnseen   bool              `json:"hasUnseen"`
	Summary     string            `json:"summary,omitempty"`
}

// ChainContextFor locates ref in the first chain containing it. Items that
// are alone in their chain, or in no chain, report IsInChain false.
func ChainContextFor(ref models.ContentRef, chains []ContentChain, seen models.IDSet) ChainContext {
	for _, chain := range chains {
		index := -1
		for i, node := range chain.Nodes {
			if node.Ref == ref {
				index = i
				break
			}
		}
		if index < 0 {
			continue
		}
		if len(chain.Nodes) < 2 {
			return ChainContext{}
		}

		ctx := ChainContext{
			IsInChain:   true,
			Root:        chain.Root,
			ChainLength: len(chain.Nodes),
			MaxSupport:  chain.MaxSupport,
			Summary:     SummarizeEvolution(chain),
		}
		switch index {
		case 0:
			ctx.Position = PositionRoot
		case len(chain.Nodes) - 1:
			ctx.Position = PositionLatest
		default:
			ctx.Position = PositionMiddle
		}

		level := chain.Nodes[index].Level
		for _, node := range chain.Nodes {
			switch {
			case node.Level < level:
				ctx.NodesBefore++
			case node.Level > level:
				ctx.NodesAfter++
			}
			if !seen.Has(node.Ref.Key()) {
				ctx.HasUnseen = true
			}
		}
		return ctx
	}
	return ChainContext{}
}
