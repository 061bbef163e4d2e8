// Package lineage derives the inspiration graph between posts and ideas and
// groups it into ranked chains.
//
// Source references point backward to older content and derived references
// point forward. The graph is expected to be acyclic; traversals keep a
// visited set keyed by "type:id" so malformed data ends a walk early instead
// of looping.
package lineage

import (
	"github.com/ideaflow/ideaflow/internal/models"
)

// Graph indexes posts and ideas by reference. It holds the forward adjacency
// built from derived arrays plus the inverse of every source array, so an
// item that only records its parent is still reachable from that parent.
type Graph struct {
	posts    map[string]models.Post
	ideas    map[string]models.Idea
	order    []models.ContentRef
	children map[string][]models.ContentRef
}

// NewGraph indexes the given items. Input order is kept for deterministic
// traversal; callers pass snapshot listings, which are sorted by id.
func NewGraph(posts []models.Post, ideas []models.Idea) *Graph {
	g := &Graph{
		posts:    make(map[string]models.Post, len(posts)),
		ideas:    make(map[string]models.Idea, len(ideas)),
		order:    make([]models.ContentRef, 0, len(posts)+len(ideas)),
		children: make(map[string][]models.ContentRef),
	}
	for _, post := range posts {
		if _, dup := g.posts[post.ID]; dup || post.ID == "" {
			continue
		}
		g.posts[post.ID] = post
		g.order = append(g.order, post.Ref())
	}
	for _, idea := range ideas {
		if _, dup := g.ideas[idea.ID]; dup || idea.ID == "" {
			continue
		}
		g.ideas[idea.ID] = idea
		g.order = append(g.order, idea.Ref())
	}

	edges := make(map[string]bool)
	link := func(from, to models.ContentRef) {
		key := from.Key() + ">" + to.Key()
		if edges[key] || to.ID == "" {
			return
		}
		edges[key] = true
		g.children[from.Key()] = append(g.children[from.Key()], to)
	}

	for _, ref := range g.order {
		switch ref.Type {
		case models.ContentPost:
			post := g.posts[ref.ID]
			for _, id := range post.DerivedPosts {
				link(ref, models.PostRef(id))
			}
			for _, id := range post.DerivedIdeas {
				link(ref, models.IdeaRef(id))
			}
			for _, id := range post.SourcePosts {
				link(models.PostRef(id), ref)
			}
		case models.ContentIdea:
			idea := g.ideas[ref.ID]
			for _, id := range idea.DerivedIdeas {
				link(ref, models.IdeaRef(id))
			}
			for _, id := range idea.SourceIdeas {
				link(models.IdeaRef(id), ref)
			}
			for _, id := range idea.SourcePosts {
				link(models.PostRef(id), ref)
			}
		}
	}
	return g
}

// Refs lists every indexed item, posts first, in input order.
func (g *Graph) Refs() []models.ContentRef {
	return append([]models.ContentRef(nil), g.order...)
}

// Has reports whether ref is indexed.
func (g *Graph) Has(ref models.ContentRef) bool {
	switch ref.Type {
	case models.ContentPost:
		_, ok := g.posts[ref.ID]
		return ok
	case models.ContentIdea:
		_, ok := g.ideas[ref.ID]
		return ok
	}
	return false
}

// parent returns the first backward reference of ref. Ideas prefer their
// first source idea over their first source post.
func (g *Graph) parent(ref models.ContentRef) (models.ContentRef, bool) {
	switch ref.Type {
	case models.ContentPost:
		if post, ok := g.posts[ref.ID]; ok && len(post.SourcePosts) > 0 {
			return models.PostRef(post.SourcePosts[0]), true
		}
	case models.ContentIdea:
		idea, ok := g.ideas[ref.ID]
		if !ok {
			break
		}
		if len(idea.SourceIdeas) > 0 {
			return models.IdeaRef(idea.SourceIdeas[0]), true
		}
		if len(idea.SourcePosts) > 0 {
			return models.PostRef(idea.SourcePosts[0]), true
		}
	}
	return models.ContentRef{}, false
}

// FindRoot follows the first backward reference until an item without one is
// reached. Only the first source is followed, so an item with several parents
// gets a single canonical root. The walk stops at the current item when the
// next reference was already visited or is not indexed.
func (g *Graph) FindRoot(ref models.ContentRef) models.ContentRef {
	visited := map[string]bool{ref.Key(): true}
	current := ref
	for {
		next, ok := g.parent(current)
		if !ok || !g.Has(next) || visited[next.Key()] {
			return current
		}
		visited[next.Key()] = true
		current = next
	}
}

// ExpandForward walks breadth-first from root and returns every reachable
// indexed item with Level set to its depth. The root has level 0. Nothing is
// returned for a root that is not indexed.
func (g *Graph) ExpandForward(root models.ContentRef) []ChainNode {
	if !g.Has(root) {
		return nil
	}

	visited := map[string]bool{root.Key(): true}
	nodes := []ChainNode{g.node(root, 0)}
	for i := 0; i < len(nodes); i++ {
		current := nodes[i]
		for _, child := range g.children[current.Ref.Key()] {
			if visited[child.Key()] || !g.Has(child) {
				continue
			}
			visited[child.Key()] = true
			nodes = append(nodes, g.node(child, current.Level+1))
		}
	}
	return nodes
}

func (g *Graph) node(ref models.ContentRef, level int) ChainNode {
	n := ChainNode{Ref: ref, Level: level}
	switch ref.Type {
	case models.ContentPost:
		post := g.posts[ref.ID]
		n.Post = &post
		n.SupportCount = post.Supporters.Len()
		n.CreatedAt = post.CreatedAt
	case models.ContentIdea:
		idea := g.ideas[ref.ID]
		n.Idea = &idea
		n.SupportCount = idea.Supporters.Len()
		n.CreatedAt = idea.CreatedAt
	}
	return n
}
