package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/latticesocial/lattice/internal/content"
	"github.com/latticesocial/lattice/internal/feed"
	"github.com/latticesocial/lattice/internal/httputil"
	"github.com/latticesocial/lattice/internal/middleware"
	"github.com/latticesocial/lattice/internal/store"
)

// CreatePost handles POST /posts for top-level posts and replies. Rate-limit
// headers ride on both success and denial responses.
func CreatePost(svc *content.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content  string  `json:"content"`
			Title    *string `json:"title"`
			Excerpt  *string `json:"excerpt"`
			ParentID *string `json:"parentId"`
		}
		if err := httputil.Decode(r, &body); err != nil {
			httputil.Error(w, log, err)
			return
		}

		post, status, err := svc.CreatePost(r.Context(), content.CreateInput{
			AuthorDID: middleware.DID(r.Context()),
			ParentID:  body.ParentID,
			Title:     body.Title,
			Content:   body.Content,
			Excerpt:   body.Excerpt,
			Signature: r.Header.Get("X-Signature"),
		})
		if status.Limit > 0 {
			httputil.RateLimitHeaders(w, status)
		}
		if err != nil {
			httputil.Error(w, log, err)
			return
		}

		// Hashtag extraction is deterministic, so re-running it here matches
		// the topic links the transaction persisted.
		httputil.JSON(w, http.StatusCreated, feed.BuildDocument(post, content.ExtractHashtags(post.Content)))
	}
}

// GetPost handles GET /posts/{id}. Deleted posts stay fetchable for audit.
func GetPost(svc *content.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		post, topics, err := svc.GetPost(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			httputil.Error(w, log, err)
			return
		}
		httputil.JSON(w, http.StatusOK, feed.BuildDocument(post, topicNames(topics)))
	}
}

// EditPost handles PATCH /posts/{id} within the edit window.
func EditPost(svc *content.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content string  `json:"content"`
			Title   *string `json:"title"`
			Excerpt *string `json:"excerpt"`
		}
		if err := httputil.Decode(r, &body); err != nil {
			httputil.Error(w, log, err)
			return
		}

		post, err := svc.EditPost(r.Context(), middleware.DID(r.Context()), mux.Vars(r)["id"], content.EditInput{
			Title:   body.Title,
			Content: body.Content,
			Excerpt: body.Excerpt,
		})
		if err != nil {
			httputil.Error(w, log, err)
			return
		}
		httputil.JSON(w, http.StatusOK, feed.BuildDocument(post, content.ExtractHashtags(post.Content)))
	}
}

// DeletePost handles DELETE /posts/{id}; author only, soft delete.
func DeletePost(svc *content.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := svc.DeletePost(r.Context(), middleware.DID(r.Context()), mux.Vars(r)["id"])
		if err != nil {
			httputil.Error(w, log, err)
			return
		}
		httputil.JSON(w, http.StatusNoContent, nil)
	}
}

// ListReplies handles GET /posts/{id}/replies with cursor pagination.
func ListReplies(svc *feed.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := svc.Replies(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("cursor"), queryInt(r, "limit", 0))
		if err != nil {
			httputil.Error(w, log, err)
			return
		}
		httputil.JSON(w, http.StatusOK, page)
	}
}

// CastVote handles POST /posts/{id}/votes. Votes spend the comment budget,
// so the rate headers ride along here too.
func CastVote(svc *content.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Value int `json:"value"`
		}
		if err := httputil.Decode(r, &body); err != nil {
			httputil.Error(w, log, err)
			return
		}

		result, status, err := svc.Vote(r.Context(), middleware.DID(r.Context()), mux.Vars(r)["id"], body.Value)
		if status.Limit > 0 {
			httputil.RateLimitHeaders(w, status)
		}
		if err != nil {
			httputil.Error(w, log, err)
			return
		}

		httputil.JSON(w, http.StatusOK, struct {
			PostID     string `json:"postId"`
			Value      int    `json:"value"`
			Changed    bool   `json:"changed"`
			EXPApplied bool   `json:"expApplied"`
		}{result.PostID, result.Value, result.Changed, result.EXPApplied})
	}
}

func topicNames(topics []store.Topic) []string {
	names := make([]string, 0, len(topics))
	for _, t := range topics {
		names = append(names, t.Name)
	}
	return names
}
