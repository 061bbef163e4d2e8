package selectors

import (
	"sort"
	"strings"
	"time"

	"github.com/ideaflow/ideaflow/internal/models"
	"github.com/ideaflow/ideaflow/internal/store"
)

// HomeStats is the aggregate shown on the landing page.
type HomeStats struct {
	TotalIdeas    int `json:"totalIdeas"`
	TotalSupports int `json:"totalSupports"`
	TotalPosts    int `json:"totalPosts"`
	Contributors  int `json:"contributors"`
}

// Stats counts non-draft ideas, distinct idea supporters, visible posts and
// distinct authors across both.
func Stats(s *store.Snapshot) HomeStats {
	supporters := models.NewIDSet()
	contributors := models.NewIDSet()
	var stats HomeStats

	for _, idea := range s.Ideas() {
		if idea.Status == models.IdeaDraft {
			continue
		}
		stats.TotalIdeas++
		supporters = supporters.Union(idea.Supporters)
		for _, id := range idea.CreatorIDs {
			contributors = contributors.With(id)
		}
	}
	for _, post := range s.Posts() {
		if post.Hidden() {
			continue
		}
		stats.TotalPosts++
		contributors = contributors.With(post.AuthorID)
	}

	stats.TotalSupports = supporters.Len()
	stats.Contributors = contributors.Len()
	return stats
}

// FeedItem is one entry of the combined feed. Exactly one of Post and Idea is set.
type FeedItem struct {
	Ref       models.ContentRef `json:"ref"`
	Post      *models.Post      `json:"post,omitempty"`
	Idea      *models.Idea      `json:"idea,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Feed merges visible posts and non-draft ideas newest first. When pinned is
// non-nil the feed is restricted to those references in their given order;
// references missing from the snapshot are skipped.
func Feed(s *store.Snapshot, pinned []models.ContentRef) []FeedItem {
	if pinned != nil {
		out := make([]FeedItem, 0, len(pinned))
		for _, ref := range pinned {
			if item, ok := feedItem(s, ref); ok {
				out = append(out, item)
			}
		}
		return out
	}

	var out []FeedItem
	for _, post := range s.Posts() {
		if item, ok := feedItem(s, post.Ref()); ok {
			out = append(out, item)
		}
	}
	for _, idea := range s.Ideas() {
		if item, ok := feedItem(s, idea.Ref()); ok {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Ref.Key() < out[j].Ref.Key()
	})
	return out
}

func feedItem(s *store.Snapshot, ref models.ContentRef) (FeedItem, bool) {
	switch ref.Type {
	case models.ContentPost:
		post, ok := s.Post(ref.ID)
		if !ok || post.Hidden() {
			return FeedItem{}, false
		}
		post = HydratePost(s, post)
		return FeedItem{Ref: ref, Post: &post, CreatedAt: post.CreatedAt}, true
	case models.ContentIdea:
		idea, ok := s.Idea(ref.ID)
		if !ok || idea.Status == models.IdeaDraft {
			return FeedItem{}, false
		}
		idea = HydrateIdea(s, idea)
		return FeedItem{Ref: ref, Idea: &idea, CreatedAt: idea.CreatedAt}, true
	}
	return FeedItem{}, false
}

// Contributions splits a user's activity into four buckets. An item lands in
// a "supported" bucket only when the user did nothing else with it.
type Contributions struct {
	Ideas          []models.Idea `json:"ideas"`
	Posts          []models.Post `json:"posts"`
	SupportedIdeas []models.Idea `json:"supportedIdeas"`
	SupportedPosts []models.Post `json:"supportedPosts"`
}

// ContributionsFor builds the contribution buckets of userID. Each bucket is
// deduplicated by id and ordered newest first.
func ContributionsFor(s *store.Snapshot, userID string) Contributions {
	var c Contributions
	if userID == "" {
		return c
	}

	discussed := make(map[string]bool)
	for _, topic := range s.Topics() {
		if topic.AuthorID == userID {
			discussed[topic.IdeaID] = true
			continue
		}
		for _, post := range topic.Posts {
			if post.AuthorID == userID {
				discussed[topic.IdeaID] = true
				break
			}
		}
	}

	ideaSeen := make(map[string]bool)
	supportedIdeaSeen := make(map[string]bool)
	for _, idea := range s.Ideas() {
		engaged := idea.IsCreator(userID) || idea.HasRatingFrom(userID) || discussed[idea.ID]
		switch {
		case engaged && !ideaSeen[idea.ID]:
			ideaSeen[idea.ID] = true
			c.Ideas = append(c.Ideas, idea)
		case !engaged && idea.Supporters.Has(userID) && !supportedIdeaSeen[idea.ID]:
			supportedIdeaSeen[idea.ID] = true
			c.SupportedIdeas = append(c.SupportedIdeas, idea)
		}
	}

	postSeen := make(map[string]bool)
	supportedPostSeen := make(map[string]bool)
	for _, post := range s.Posts() {
		engaged := post.AuthorID == userID || post.HasReplyFrom(userID)
		switch {
		case engaged && !postSeen[post.ID]:
			postSeen[post.ID] = true
			c.Posts = append(c.Posts, post)
		case !engaged && post.Supporters.Has(userID) && !supportedPostSeen[post.ID]:
			supportedPostSeen[post.ID] = true
			c.SupportedPosts = append(c.SupportedPosts, post)
		}
	}

	sortIdeas(c.Ideas)
	sortIdeas(c.SupportedIdeas)
	sortPosts(c.Posts)
	sortPosts(c.SupportedPosts)
	return c
}

// SearchResults holds the matches of a text query.
type SearchResults struct {
	Ideas []models.Idea `json:"ideas"`
	Posts []models.Post `json:"posts"`
}

// Search matches case-insensitively. Every whitespace separated term must
// appear in the idea title, summary, description or tags, or in the post
// content. Drafts and hidden posts are excluded. An empty query matches nothing.
func Search(s *store.Snapshot, query string) SearchResults {
	var results SearchResults
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return results
	}

	for _, idea := range s.Ideas() {
		if idea.Status == models.IdeaDraft {
			continue
		}
		text := strings.ToLower(strings.Join([]string{
			idea.Title, idea.Summary, idea.Description, strings.Join(idea.Tags, " "),
		}, "\n"))
		if matchesAll(text, terms) {
			results.Ideas = append(results.Ideas, idea)
		}
	}
	for _, post := range s.Posts() {
		if post.Hidden() {
			continue
		}
		if matchesAll(strings.ToLower(post.Content), terms) {
			results.Posts = append(results.Posts, post)
		}
	}

	sortIdeas(results.Ideas)
	sortPosts(results.Posts)
	return results
}

func matchesAll(text string, terms []string) bool {
	for _, term := range terms {
		if !strings.Contains(text, term) {
			return false
		}
	}
	return true
}
