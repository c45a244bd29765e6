package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/latticesocial/lattice/internal/apperr"
	"github.com/latticesocial/lattice/internal/feed"
	"github.com/latticesocial/lattice/internal/httputil"
	"github.com/latticesocial/lattice/internal/middleware"
)

// Feed handles GET /feed: the chronological feed with optional author,
// topic and filter=following query filters. Sits behind optional auth so
// the following filter can see the viewer.
func Feed(svc *feed.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := feed.Query{
			AuthorDID: r.URL.Query().Get("author"),
			Topic:     r.URL.Query().Get("topic"),
			ViewerDID: middleware.DID(r.Context()),
			Cursor:    r.URL.Query().Get("cursor"),
			Limit:     queryInt(r, "limit", 0),
		}
		switch filter := r.URL.Query().Get("filter"); filter {
		case "":
		case "following":
			q.Following = true
		default:
			httputil.Error(w, log, apperr.New(apperr.CodeValidation, "filter must be 'following' when set"))
			return
		}

		page, err := svc.Recent(r.Context(), q)
		if err != nil {
			httputil.Error(w, log, err)
			return
		}
		httputil.JSON(w, http.StatusOK, page)
	}
}

// HomeFeed handles GET /feed/home, the authenticated following feed.
func HomeFeed(svc *feed.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := svc.Home(r.Context(), middleware.DID(r.Context()), r.URL.Query().Get("cursor"), queryInt(r, "limit", 0))
		if err != nil {
			httputil.Error(w, log, err)
			return
		}
		httputil.JSON(w, http.StatusOK, page)
	}
}

// DiscoverFeed handles GET /feed/discover?sort=newest|popular|random.
func DiscoverFeed(svc *feed.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := svc.Discover(r.Context(),
			r.URL.Query().Get("sort"),
			r.URL.Query().Get("topic"),
			r.URL.Query().Get("cursor"),
			queryInt(r, "limit", 0))
		if err != nil {
			httputil.Error(w, log, err)
			return
		}
		httputil.JSON(w, http.StatusOK, page)
	}
}

// HotFeed handles GET /feed/hot?hoursBack=&offset=&limit=.
func HotFeed(svc *feed.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := svc.Hot(r.Context(),
			queryInt(r, "hoursBack", 0),
			queryInt(r, "offset", 0),
			queryInt(r, "limit", 0))
		if err != nil {
			httputil.Error(w, log, err)
			return
		}
		httputil.JSON(w, http.StatusOK, page)
	}
}
