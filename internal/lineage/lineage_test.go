package lineage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideaflow/ideaflow/internal/models"
	"github.com/ideaflow/ideaflow/internal/store"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func hours(n int) time.Time {
	return t0.Add(time.Duration(n) * time.Hour)
}

func supporters(n int) models.IDSet {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = string(rune('a'+i%26)) + string(rune('a'+i/26))
	}
	return models.NewIDSet(ids...)
}

func refs(nodes []ChainNode) []models.ContentRef {
	out := make([]models.ContentRef, len(nodes))
	for i, n := range nodes {
		out[i] = n.Ref
	}
	return out
}

func TestEndToEnd_PostsEvolveIntoIdea(t *testing.T) {
	posts := []models.Post{
		{ID: "P1", CreatedAt: hours(1)},
		{ID: "P2", SourcePosts: []string{"P1"}, CreatedAt: hours(2)},
	}
	ideas := []models.Idea{
		{ID: "I1", SourcePosts: []string{"P2"}, CreatedAt: hours(3)},
	}

	chains := AnalyzeChains(posts, ideas, models.NewIDSet())
	require.Len(t, chains, 1)

	chain := chains[0]
	assert.Equal(t, models.PostRef("P1"), chain.Root)
	assert.Equal(t, 3, chain.NodeCount)
	assert.Equal(t, []models.ContentRef{models.PostRef("P1"), models.PostRef("P2"), models.IdeaRef("I1")}, refs(chain.Nodes))
	for i, node := range chain.Nodes {
		assert.Equal(t, i, node.Level)
	}
	assert.Equal(t, "2 posts → 1 idea", SummarizeEvolution(chain))
	assert.True(t, chain.HasUnseen)
	assert.Equal(t, hours(3), chain.LatestActivity)
}

func TestFindRoot(t *testing.T) {
	g := NewGraph(
		[]models.Post{
			{ID: "p1"},
			{ID: "p2", SourcePosts: []string{"p1", "p9"}},
			{ID: "p3", SourcePosts: []string{"missing"}},
		},
		[]models.Idea{
			{ID: "i1", SourcePosts: []string{"p2"}},
			{ID: "i2", SourceIdeas: []string{"i1"}, SourcePosts: []string{"p3"}},
		},
	)

	tests := []struct {
		name string
		ref  models.ContentRef
		want models.ContentRef
	}{
		{name: "root is its own root", ref: models.PostRef("p1"), want: models.PostRef("p1")},
		{name: "first source only", ref: models.PostRef("p2"), want: models.PostRef("p1")},
		{name: "missing source stops at current", ref: models.PostRef("p3"), want: models.PostRef("p3")},
		{name: "idea through posts", ref: models.IdeaRef("i1"), want: models.PostRef("p1")},
		{name: "source idea preferred", ref: models.IdeaRef("i2"), want: models.PostRef("p1")},
		{name: "unknown item", ref: models.IdeaRef("nope"), want: models.IdeaRef("nope")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.FindRoot(tt.ref); got != tt.want {
				t.Errorf("FindRoot(%s) = %s, want %s", tt.ref.Key(), got.Key(), tt.want.Key())
			}
		})
	}
}

func TestCycleTerminates(t *testing.T) {
	posts := []models.Post{
		{ID: "A", SourcePosts: []string{"B"}, DerivedPosts: []string{"B"}},
		{ID: "B", SourcePosts: []string{"A"}, DerivedPosts: []string{"A"}},
		{ID: "C", SourcePosts: []string{"C"}},
	}
	g := NewGraph(posts, nil)

	assert.Equal(t, models.PostRef("B"), g.FindRoot(models.PostRef("A")))
	assert.Equal(t, models.PostRef("A"), g.FindRoot(models.PostRef("B")))
	assert.Equal(t, models.PostRef("C"), g.FindRoot(models.PostRef("C")))

	nodes := g.ExpandForward(models.PostRef("A"))
	assert.Len(t, nodes, 2)
	assert.Len(t, g.ExpandForward(models.PostRef("C")), 1)

	chains := AnalyzeChains(posts, nil, models.NewIDSet())
	assert.NotEmpty(t, chains)
}

func TestExpandForward_Levels(t *testing.T) {
	g := NewGraph(
		[]models.Post{
			{ID: "p1", DerivedIdeas: []string{"i1"}, DerivedPosts: []string{"p2", "ghost"}},
			{ID: "p2"},
		},
		[]models.Idea{
			{ID: "i1", DerivedIdeas: []string{"i2"}},
			{ID: "i2", SourcePosts: []string{"p2"}},
		},
	)

	nodes := g.ExpandForward(models.PostRef("p1"))
	levels := map[string]int{}
	for _, n := range nodes {
		levels[n.Ref.Key()] = n.Level
	}
	assert.Equal(t, map[string]int{"post:p1": 0, "post:p2": 1, "idea:i1": 1, "idea:i2": 2}, levels)
	assert.Nil(t, g.ExpandForward(models.PostRef("ghost")))
}

func TestChainOrdering(t *testing.T) {
	posts := []models.Post{
		{ID: "chain1", Supporters: supporters(1), CreatedAt: hours(1)},
		{ID: "chain2", Supporters: supporters(100), CreatedAt: hours(2)},
		{ID: "chain3", Supporters: supporters(5), CreatedAt: hours(3)},
	}
	seen := models.RefSet(models.PostRef("chain2"), models.PostRef("chain3"))

	chains := AnalyzeChains(posts, nil, seen)
	require.Len(t, chains, 3)
	assert.Equal(t, models.PostRef("chain1"), chains[0].Root)
	assert.Equal(t, models.PostRef("chain2"), chains[1].Root)
	assert.Equal(t, models.PostRef("chain3"), chains[2].Root)
	assert.True(t, chains[0].HasUnseen)
	assert.False(t, chains[1].HasUnseen)
}

func TestChainOrdering_LatestActivityBreaksTies(t *testing.T) {
	posts := []models.Post{
		{ID: "old", Supporters: supporters(2), CreatedAt: hours(1)},
		{ID: "new", Supporters: supporters(2), CreatedAt: hours(5)},
	}
	chains := AnalyzeChains(posts, nil, models.RefSet(models.PostRef("old"), models.PostRef("new")))
	require.Len(t, chains, 2)
	assert.Equal(t, "new", chains[0].Root.ID)
}

func TestNodesSortedByLevelThenNewest(t *testing.T) {
	posts := []models.Post{
		{ID: "root", CreatedAt: hours(0)},
		{ID: "a", SourcePosts: []string{"root"}, CreatedAt: hours(1)},
		{ID: "b", SourcePosts: []string{"root"}, CreatedAt: hours(4)},
		{ID: "c", SourcePosts: []string{"a"}, CreatedAt: hours(2)},
	}
	chains := AnalyzeChains(posts, nil, models.NewIDSet())
	require.Len(t, chains, 1)
	assert.Equal(t, []models.ContentRef{
		models.PostRef("root"), models.PostRef("b"), models.PostRef("a"), models.PostRef("c"),
	}, refs(chains[0].Nodes))
}

func TestPickRelevantNode(t *testing.T) {
	chain := ContentChain{Nodes: []ChainNode{
		{Ref: models.PostRef("n1"), Level: 0, SupportCount: 50, CreatedAt: hours(1)},
		{Ref: models.PostRef("n2"), Level: 1, SupportCount: 0, CreatedAt: hours(2)},
		{Ref: models.IdeaRef("n3"), Level: 2, SupportCount: 90, CreatedAt: hours(3)},
	}}

	allSeen := models.RefSet(models.PostRef("n1"), models.PostRef("n2"), models.IdeaRef("n3"))

	node, ok := PickRelevantNode(chain, models.RefSet(models.PostRef("n1"), models.IdeaRef("n3")))
	require.True(t, ok)
	assert.Equal(t, "n2", node.Ref.ID)

	node, _ = PickRelevantNode(chain, models.NewIDSet())
	assert.Equal(t, "n3", node.Ref.ID, "newest unseen wins")

	node, _ = PickRelevantNode(chain, allSeen)
	assert.Equal(t, "n3", node.Ref.ID, "highest support when all seen")

	chain.Nodes[2].SupportCount = 50
	node, _ = PickRelevantNode(chain, allSeen)
	assert.Equal(t, "n1", node.Ref.ID, "ties go to the first in order")

	node, _ = PickRelevantNode(chain, models.RefSet(models.PostRef("n1"), models.PostRef("n2"), models.PostRef("n3")))
	assert.Equal(t, models.IdeaRef("n3"), node.Ref, "a seen post does not hide an idea with the same id")

	_, ok = PickRelevantNode(ContentChain{}, models.NewIDSet())
	assert.False(t, ok)
}

func TestSummarizeEvolution(t *testing.T) {
	tests := []struct {
		name  string
		types []models.ContentType
		want  string
	}{
		{name: "empty", want: ""},
		{name: "single post", types: []models.ContentType{models.ContentPost}, want: "Original post"},
		{name: "single idea", types: []models.ContentType{models.ContentIdea}, want: "Original idea"},
		{name: "posts only", types: []models.ContentType{models.ContentPost, models.ContentPost}, want: "2 posts"},
		{name: "ideas only", types: []models.ContentType{models.ContentIdea, models.ContentIdea, models.ContentIdea}, want: "3 ideas"},
		{name: "mixed", types: []models.ContentType{models.ContentIdea, models.ContentPost, models.ContentIdea}, want: "1 post → 2 ideas"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var chain ContentChain
			for i, typ := range tt.types {
				chain.Nodes = append(chain.Nodes, ChainNode{Ref: models.ContentRef{Type: typ, ID: string(rune('a' + i))}})
			}
			if got := SummarizeEvolution(chain); got != tt.want {
				t.Errorf("SummarizeEvolution() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChainContextFor(t *testing.T) {
	posts := []models.Post{
		{ID: "P1", CreatedAt: hours(1)},
		{ID: "P2", SourcePosts: []string{"P1"}, CreatedAt: hours(2), Supporters: supporters(7)},
		{ID: "solo", CreatedAt: hours(4)},
	}
	ideas := []models.Idea{{ID: "I1", SourcePosts: []string{"P2"}, CreatedAt: hours(3)}}
	seen := models.RefSet(models.PostRef("P1"), models.PostRef("P2"), models.IdeaRef("I1"))
	chains := AnalyzeChains(posts, ideas, seen)

	root := ChainContextFor(models.PostRef("P1"), chains, seen)
	assert.True(t, root.IsInChain)
	assert.Equal(t, PositionRoot, root.Position)
	assert.Equal(t, 0, root.NodesBefore)
	assert.Equal(t, 2, root.NodesAfter)
	assert.Equal(t, 7, root.MaxSupport)
	assert.False(t, root.HasUnseen)
	assert.Equal(t, "2 posts → 1 idea", root.Summary)

	middle := ChainContextFor(models.PostRef("P2"), chains, seen)
	assert.Equal(t, PositionMiddle, middle.Position)
	assert.Equal(t, 1, middle.NodesBefore)
	assert.Equal(t, 1, middle.NodesAfter)

	latest := ChainContextFor(models.IdeaRef("I1"), chains, models.NewIDSet())
	assert.Equal(t, PositionLatest, latest.Position)
	assert.True(t, latest.HasUnseen)

	assert.False(t, ChainContextFor(models.PostRef("solo"), chains, seen).IsInChain)
	assert.False(t, ChainContextFor(models.PostRef("unknown"), chains, seen).IsInChain)
}

func TestAnalyzer_MemoizesPerVersionAndSeenSet(t *testing.T) {
	table := store.New()
	require.NoError(t, table.UpsertMany(
		models.Post{ID: "P1", CreatedAt: hours(1)},
		models.Post{ID: "P2", SourcePosts: []string{"P1"}, CreatedAt: hours(2)},
	))

	analyzer, err := NewAnalyzer(4, nil)
	require.NoError(t, err)

	snap := table.Snapshot()
	first := analyzer.Chains(snap, models.NewIDSet())
	second := analyzer.Chains(snap, models.NewIDSet())
	require.Len(t, first, 1)
	assert.Same(t, &first[0], &second[0])

	seenAll := analyzer.Chains(snap, models.RefSet(models.PostRef("P1"), models.PostRef("P2")))
	assert.False(t, seenAll[0].HasUnseen)
	assert.True(t, first[0].HasUnseen)

	require.NoError(t, table.Upsert(models.Idea{ID: "I1", SourcePosts: []string{"P2"}, CreatedAt: hours(3)}))
	updated := analyzer.Chains(table.Snapshot(), models.NewIDSet())
	assert.Equal(t, 3, updated[0].NodeCount)

	ctx := analyzer.ContextFor(table.Snapshot(), models.IdeaRef("I1"), models.NewIDSet())
	assert.Equal(t, PositionLatest, ctx.Position)

	subset := analyzer.ChainsFor(table.Snapshot(), []models.ContentRef{models.IdeaRef("I1")}, models.NewIDSet())
	require.Len(t, subset, 1)
	assert.Equal(t, models.PostRef("P1"), subset[0].Root)
}
