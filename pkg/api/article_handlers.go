package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/thoughtnest/pkg/apperr"
	"github.com/platinummonkey/thoughtnest/pkg/articles"
	"github.com/platinummonkey/thoughtnest/pkg/auth"
	"github.com/platinummonkey/thoughtnest/pkg/httputil"
	"github.com/platinummonkey/thoughtnest/pkg/middleware"
)

// multipartOverhead covers boundaries and part headers around the image.
const multipartOverhead int64 = 64 << 10

// ArticleHandlers handles article routes
type ArticleHandlers struct {
	articles       ArticleService
	maxBytes       int64
	maxUploadBytes int64
}

// NewArticleHandlers creates ArticleHandlers.
func NewArticleHandlers(articles ArticleService, maxBodyBytes, maxUploadBytes int64) *ArticleHandlers {
	return &ArticleHandlers{articles: articles, maxBytes: maxBodyBytes, maxUploadBytes: maxUploadBytes}
}

// RegisterRoutes registers article routes. Fixed paths come before {id}.
func (h *ArticleHandlers) RegisterRoutes(router *mux.Router) {
	r := router.PathPrefix("/api/articles").Subrouter()

	r.HandleFunc("/public", h.listPublished).Methods(http.MethodGet)
	r.Handle("/my", middleware.RequireIdentityFunc(h.listMine)).Methods(http.MethodGet)
	r.Handle("/all", middleware.RequireIdentityFunc(h.listAll)).Methods(http.MethodGet)
	r.Handle("/upload-image", middleware.RequireIdentityFunc(h.uploadImage)).Methods(http.MethodPost)

	r.Handle("", middleware.RequireIdentity(jsonBody(h.maxBytes, h.create))).Methods(http.MethodPost)
	r.Handle("/{id:[0-9]+}", middleware.RequireIdentityFunc(h.get)).Methods(http.MethodGet)
	r.Handle("/{id:[0-9]+}", middleware.RequireIdentity(jsonBody(h.maxBytes, h.update))).Methods(http.MethodPut)
	r.Handle("/{id:[0-9]+}", middleware.RequireIdentityFunc(h.delete)).Methods(http.MethodDelete)
	r.Handle("/{id:[0-9]+}/publish", middleware.RequireIdentityFunc(h.setPublished)).Methods(http.MethodPatch)
}

// create handles POST /api/articles
func (h *ArticleHandlers) create(w http.ResponseWriter, r *http.Request) {
	var in articles.Input
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	view, err := h.articles.Create(r.Context(), auth.FromContext(r.Context()), in)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, "Article created", view)
}

// listMine handles GET /api/articles/my
func (h *ArticleHandlers) listMine(w http.ResponseWriter, r *http.Request) {
	views, err := h.articles.ListMine(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, "User articles retrieved", views)
}

// listAll handles GET /api/articles/all
func (h *ArticleHandlers) listAll(w http.ResponseWriter, r *http.Request) {
	views, err := h.articles.ListAll(r.Context())
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, "All articles retrieved", views)
}

// listPublished handles GET /api/articles/public
func (h *ArticleHandlers) listPublished(w http.ResponseWriter, r *http.Request) {
	views, err := h.articles.ListPublished(r.Context())
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, "Published articles retrieved", views)
}

// get handles GET /api/articles/{id}
func (h *ArticleHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	view, err := h.articles.Get(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, "Article retrieved", view)
}

// update handles PUT /api/articles/{id}
func (h *ArticleHandlers) update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var in articles.Input
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	view, err := h.articles.Update(r.Context(), auth.FromContext(r.Context()), id, in)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, "Article updated", view)
}

// delete handles DELETE /api/articles/{id}
func (h *ArticleHandlers) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.articles.Delete(r.Context(), auth.FromContext(r.Context()), id); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, "Article deleted", nil)
}

// setPublished handles PATCH /api/articles/{id}/publish?published=bool
func (h *ArticleHandlers) setPublished(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	published, err := httputil.ParseQueryBool(r, "published")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := h.articles.SetPublished(r.Context(), auth.FromContext(r.Context()), id, published); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	message := "Article unpublished"
	if published {
		message = "Article published"
	}
	httputil.WriteSuccess(w, message, nil)
}

// uploadImage handles POST /api/articles/upload-image with a multipart
// "image" field and answers with the public URL.
func (h *ArticleHandlers) uploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteAppError(w, r, apperr.Validation("Image file is too large", map[string]string{"image": "exceeds the upload limit"}))
			return
		}
		httputil.WriteAppError(w, r, apperr.Validation("No image uploaded", map[string]string{"image": "is required"}))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("image")
	if err != nil {
		httputil.WriteAppError(w, r, apperr.Validation("No image uploaded", map[string]string{"image": "is required"}))
		return
	}
	defer file.Close()

	url, err := h.articles.UploadImage(r.Context(), auth.FromContext(r.Context()),
		header.Filename, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, "Image uploaded successfully", url)
}
