// Package enrich folds fragments fetched from other modules into a page of
// posts. Everything here is pure: the same inputs always produce the same
// page, in the order of the base list.
package enrich

import (
	"math"
	"sort"
	"time"

	"github.com/d60-Lab/postboard/internal/model"
)

// UserData is the author profile answered by the user module.
type UserData struct {
	ID           string `json:"id"`
	Nickname     string `json:"nickname"`
	Email        string `json:"email"`
	ProfileImage string `json:"profile_image"`
}

// InteractionData is one user's interaction with a post.
type InteractionData struct {
	PostID string `json:"post_id"`
	UserID string `json:"user_id"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

// CommentData is the live comment count of a post.
type CommentData struct {
	PostID string `json:"post_id"`
	Count  int64  `json:"count"`
}

type ResourceData struct {
	PostID   string `json:"post_id"`
	URL      string `json:"url"`
	Kind     string `json:"kind"`
	Position int    `json:"position"`
}

// Fragments holds whatever each kind returned. A nil slice means the kind
// timed out or was not requested; both yield defaults.
type Fragments struct {
	Users        []UserData
	Interactions []InteractionData
	Comments     []CommentData
	Bookmarks    []string
	Resources    []ResourceData
}

type Options struct {
	// ViewerID decides Liked; empty means anonymous.
	ViewerID string
}

type EnrichedPost struct {
	ID           string         `json:"id"`
	AuthorID     string         `json:"author_id"`
	Title        string         `json:"title"`
	Content      string         `json:"content"`
	ContentType  string         `json:"content_type"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Author       *UserData      `json:"author,omitempty"`
	LikeCount    int64          `json:"like_count"`
	CommentCount int64          `json:"comment_count"`
	Liked        bool           `json:"liked"`
	Bookmarked   bool           `json:"bookmarked"`
	Resources    []ResourceData `json:"resources"`
}

// OrderIndex maps each id to its first position in ids.
func OrderIndex(ids []string) map[string]int {
	idx := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, ok := idx[id]; !ok {
			idx[id] = i
		}
	}
	return idx
}

// Rank returns the position of id, or math.MaxInt when id is not in the page.
func Rank(index map[string]int, id string) int {
	if r, ok := index[id]; ok {
		return r
	}
	return math.MaxInt
}

// Aggregate merges fragments into posts. Fragment entries naming posts that
// are not on the page are dropped; posts without fragments keep zero values.
// LikeCount is counted from the ACTIVE LIKE interactions only, the persisted
// counter on the post row is ignored.
func Aggregate(posts []model.Post, f Fragments, opts Options) []EnrichedPost {
	out := make([]EnrichedPost, len(posts))
	if len(posts) == 0 {
		return out
	}

	index := OrderIndex(PostIDs(posts))

	users := make(map[string]*UserData, len(f.Users))
	for i := range f.Users {
		u := f.Users[i]
		if _, dup := users[u.ID]; !dup {
			users[u.ID] = &u
		}
	}

	likes := make(map[string]int64)
	liked := make(map[string]bool)
	for _, it := range f.Interactions {
		if Rank(index, it.PostID) == math.MaxInt {
			continue
		}
		if it.Type != model.InteractionLike || it.Status != model.InteractionActive {
			continue
		}
		likes[it.PostID]++
		if opts.ViewerID != "" && it.UserID == opts.ViewerID {
			liked[it.PostID] = true
		}
	}

	comments := make(map[string]int64, len(f.Comments))
	for _, c := range f.Comments {
		if Rank(index, c.PostID) == math.MaxInt {
			continue
		}
		comments[c.PostID] += c.Count
	}

	bookmarked := make(map[string]bool, len(f.Bookmarks))
	for _, id := range f.Bookmarks {
		bookmarked[id] = true
	}

	resources := make(map[string][]ResourceData)
	for _, r := range f.Resources {
		if Rank(index, r.PostID) == math.MaxInt {
			continue
		}
		resources[r.PostID] = append(resources[r.PostID], r)
	}
	for id := range resources {
		rs := resources[id]
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].Position < rs[j].Position })
	}

	for i, p := range posts {
		e := EnrichedPost{
			ID:           p.ID,
			AuthorID:     p.AuthorID,
			Title:        p.Title,
			Content:      p.Content,
			ContentType:  p.ContentType,
			CreatedAt:    p.CreatedAt,
			UpdatedAt:    p.UpdatedAt,
			LikeCount:    likes[p.ID],
			CommentCount: comments[p.ID],
			Liked:        liked[p.ID],
			Bookmarked:   bookmarked[p.ID],
			Resources:    resources[p.ID],
		}
		if u, ok := users[p.AuthorID]; ok {
			cp := *u
			e.Author = &cp
		}
		if e.Resources == nil {
			e.Resources = []ResourceData{}
		}
		out[i] = e
	}
	return out
}

// PostIDs returns the ids of posts in page order.
func PostIDs(posts []model.Post) []string {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}

// AuthorIDs returns distinct author ids in order of first appearance.
func AuthorIDs(posts []model.Post) []string {
	seen := make(map[string]struct{}, len(posts))
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		if _, ok := seen[p.AuthorID]; ok {
			continue
		}
		seen[p.AuthorID] = struct{}{}
		ids = append(ids, p.AuthorID)
	}
	return ids
}

// FromResources converts post-owned attachment rows into fragments.
func FromResources(rows []model.PostResource) []ResourceData {
	out := make([]ResourceData, len(rows))
	for i, r := range rows {
		out[i] = ResourceData{PostID: r.PostID, URL: r.URL, Kind: r.Kind, Position: r.Position}
	}
	return out
}
