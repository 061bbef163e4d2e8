package store

import "github.com/ideaflow/ideaflow/internal/models"

// normalizePost moves embedded users out of the post. The returned post
// carries ids only; the users are returned for registration.
func normalizePost(post models.Post) (models.Post, []models.User) {
	var users []models.User
	if post.Author != nil {
		if post.AuthorID == "" {
			post.AuthorID = post.Author.ID
		}
		users = append(users, withID(*post.Author, post.AuthorID))
		post.Author = nil
	} else if post.AuthorID != "" {
		users = append(users, models.User{ID: post.AuthorID})
	}

	if len(post.Replies) > 0 {
		replies := make([]models.Reply, len(post.Replies))
		for i, reply := range post.Replies {
			if reply.Author != nil {
				if reply.AuthorID == "" {
					reply.AuthorID = reply.Author.ID
				}
				users = append(users, withID(*reply.Author, reply.AuthorID))
				reply.Author = nil
			} else if reply.AuthorID != "" {
				users = append(users, models.User{ID: reply.AuthorID})
			}
			replies[i] = reply
		}
		post.Replies = replies
	}
	return post, users
}

func normalizeIdea(idea models.Idea) (models.Idea, []models.User) {
	var users []models.User
	creatorIDs := append([]string(nil), idea.CreatorIDs...)
	known := make(map[string]bool, len(creatorIDs))
	for _, id := range creatorIDs {
		known[id] = true
	}
	for _, creator := range idea.Creators {
		if creator.ID == "" {
			continue
		}
		users = append(users, creator)
		if !known[creator.ID] {
			creatorIDs = append(creatorIDs, creator.ID)
			known[creator.ID] = true
		}
	}
	for _, id := range creatorIDs {
		users = append(users, models.User{ID: id})
	}
	idea.Creators = nil
	if len(creatorIDs) > 0 {
		idea.CreatorIDs = creatorIDs
	}
	return idea, users
}

func normalizeTopic(topic models.DiscussionTopic) (models.DiscussionTopic, []models.User) {
	var users []models.User
	if topic.Author != nil {
		if topic.AuthorID == "" {
			topic.AuthorID = topic.Author.ID
		}
		users = append(users, withID(*topic.Author, topic.AuthorID))
		topic.Author = nil
	} else if topic.AuthorID != "" {
		users = append(users, models.User{ID: topic.AuthorID})
	}

	if len(topic.Posts) > 0 {
		posts := make([]models.DiscussionPost, len(topic.Posts))
		for i, post := range topic.Posts {
			if post.Author != nil {
				if post.AuthorID == "" {
					post.AuthorID = post.Author.ID
				}
				users = append(users, withID(*post.Author, post.AuthorID))
				post.Author = nil
			} else if post.AuthorID != "" {
				users = append(users, models.User{ID: post.AuthorID})
			}
			posts[i] = post
		}
		topic.Posts = posts
	}
	return topic, users
}

func withID(user models.User, id string) models.User {
	if user.ID == "" {
		user.ID = id
	}
	return user
}
