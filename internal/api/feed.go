package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/feeds"
	"go.uber.org/zap"

	"github.com/ideaflow/ideaflow/internal/models"
	"github.com/ideaflow/ideaflow/internal/selectors"
)

const feedTitleRunes = 80

// atomFeed renders the first page of the combined feed as Atom.
func (r *Router) atomFeed(c *gin.Context) {
	items, err := r.feed(c.Request.Context(), feedParams{}.page(), false)
	if err != nil {
		r.logger.Error("failed to build feed", zap.Error(err))
		c.String(http.StatusBadGateway, "feed unavailable")
		return
	}

	baseURL := "http://" + c.Request.Host
	if c.Request.TLS != nil {
		baseURL = "https://" + c.Request.Host
	}
	atom, err := renderAtom(baseURL, items, time.Now().UTC())
	if err != nil {
		r.logger.Error("failed to render feed", zap.Error(err))
		c.String(http.StatusInternalServerError, "feed unavailable")
		return
	}
	c.Data(http.StatusOK, "application/atom+xml; charset=utf-8", []byte(atom))
}

func renderAtom(baseURL string, items []selectors.FeedItem, now time.Time) (string, error) {
	feed := &feeds.Feed{
		Title:       "Ideaflow",
		Link:        &feeds.Link{Href: baseURL},
		Description: "Latest posts and ideas",
		Created:     now,
	}
	for _, item := range items {
		entry := &feeds.Item{
			Id:      item.Ref.Key(),
			Link:    &feeds.Link{Href: fmt.Sprintf("%s/%ss/%s", baseURL, item.Ref.Type, item.Ref.ID)},
			Created: item.CreatedAt,
		}
		switch {
		case item.Post != nil:
			entry.Title = truncate(item.Post.Content, feedTitleRunes)
			entry.Description = item.Post.Content
			entry.Author = feedAuthor(item.Post.Author)
		case item.Idea != nil:
			entry.Title = item.Idea.Title
			entry.Description = item.Idea.Summary
			if len(item.Idea.Creators) > 0 {
				entry.Author = feedAuthor(&item.Idea.Creators[0])
			}
		}
		if item.CreatedAt.After(feed.Updated) {
			feed.Updated = item.CreatedAt
		}
		feed.Items = append(feed.Items, entry)
	}
	return feed.ToAtom()
}

func feedAuthor(user *models.User) *feeds.Author {
	if user == nil {
		return nil
	}
	name := user.DisplayName
	if name == "" {
		name = user.ID
	}
	return &feeds.Author{Name: name}
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
