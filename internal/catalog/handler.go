package catalog

import (
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/bookstore/internal/httpapi"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) HandleHome(w http.ResponseWriter, r *http.Request) {
	home, err := h.service.Home(r.Context())
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, h.logger, http.StatusOK, home)
}

func (h *Handler) HandleListBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.service.SearchBooks(r.Context(), SearchParams{
		Query:     q.Get("query"),
		Genre:     q.Get("genre"),
		Publisher: q.Get("publisher"),
		SortBy:    q.Get("sort_by"),
		Page:      q.Get("page"),
	})
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}

	h.logger.Info("books listed", "count", len(result.Books.Items), "page", result.Books.Page)
	httpapi.WriteJSON(w, h.logger, http.StatusOK, result)
}

func (h *Handler) HandleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}

	detail, err := h.service.BookDetail(r.Context(), id)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, h.logger, http.StatusOK, detail)
}

func (h *Handler) HandleCreateBook(w http.ResponseWriter, r *http.Request) {
	var in BookInput
	if err := httpapi.DecodeJSON(w, r, &in); err != nil {
		httpapi.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	book, err := h.service.CreateBook(r.Context(), in)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, h.logger, http.StatusCreated, book)
}

func (h *Handler) HandleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}

	var in BookInput
	if err := httpapi.DecodeJSON(w, r, &in); err != nil {
		httpapi.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	book, err := h.service.UpdateBook(r.Context(), id, in)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, h.logger, http.StatusOK, book)
}

func (h *Handler) HandleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}

	if err := h.service.DeleteBook(r.Context(), id); err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleListAuthors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.service.ListAuthors(r.Context(), q.Get("query"), q.Get("page"))
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, h.logger, http.StatusOK, page)
}

func (h *Handler) HandleGetAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}

	detail, err := h.service.AuthorDetail(r.Context(), id)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, h.logger, http.StatusOK, detail)
}

func (h *Handler) HandleCreateAuthor(w http.ResponseWriter, r *http.Request) {
	var in AuthorInput
	if err := httpapi.DecodeJSON(w, r, &in); err != nil {
		httpapi.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	author, err := h.service.CreateAuthor(r.Context(), in)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, h.logger, http.StatusCreated, author)
}

func (h *Handler) HandleUpdateAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}

	var in AuthorInput
	if err := httpapi.DecodeJSON(w, r, &in); err != nil {
		httpapi.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	author, err := h.service.UpdateAuthor(r.Context(), id, in)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, h.logger, http.StatusOK, author)
}

func (h *Handler) HandleDeleteAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}

	if err := h.service.DeleteAuthor(r.Context(), id); err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleListPublishers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.service.ListPublishers(r.Context(), q.Get("query"), q.Get("page"))
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, h.logger, http.StatusOK, page)
}

func (h *Handler) HandleGetPublisher(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}

	detail, err := h.service.PublisherDetail(r.Context(), id)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, h.logger, http.StatusOK, detail)
}

func (h *Handler) HandleCreatePublisher(w http.ResponseWriter, r *http.Request) {
	var in PublisherInput
	if err := httpapi.DecodeJSON(w, r, &in); err != nil {
		httpapi.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.service.CreatePublisher(r.Context(), in)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, h.logger, http.StatusCreated, p)
}

func (h *Handler) HandleUpdatePublisher(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}

	var in PublisherInput
	if err := httpapi.DecodeJSON(w, r, &in); err != nil {
		httpapi.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.service.UpdatePublisher(r.Context(), id, in)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, h.logger, http.StatusOK, p)
}

func (h *Handler) HandleDeletePublisher(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}

	if err := h.service.DeletePublisher(r.Context(), id); err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleListGenres(w http.ResponseWriter, r *http.Request) {
	genres, err := h.service.ListGenres(r.Context())
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, h.logger, http.StatusOK, genres)
}

func (h *Handler) HandleCreateGenre(w http.ResponseWriter, r *http.Request) {
	var in GenreInput
	if err := httpapi.DecodeJSON(w, r, &in); err != nil {
		httpapi.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	g, err := h.service.CreateGenre(r.Context(), in)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, h.logger, http.StatusCreated, g)
}

// Routes registers the catalog endpoints. staff wraps the write handlers.
func (h *Handler) Routes(mux *httpapi.Router, staff func(http.HandlerFunc) http.HandlerFunc) {
	mux.Handle("GET /home", h.HandleHome)

	mux.Handle("GET /books", h.HandleListBooks)
	mux.Handle("GET /books/{id}", h.HandleGetBook)
	mux.Handle("POST /books", staff(h.HandleCreateBook))
	mux.Handle("PUT /books/{id}", staff(h.HandleUpdateBook))
	mux.Handle("DELETE /books/{id}", staff(h.HandleDeleteBook))

	mux.Handle("GET /authors", h.HandleListAuthors)
	mux.Handle("GET /authors/{id}", h.HandleGetAuthor)
	mux.Handle("POST /authors", staff(h.HandleCreateAuthor))
	mux.Handle("PUT /authors/{id}", staff(h.HandleUpdateAuthor))
	mux.Handle("DELETE /authors/{id}", staff(h.HandleDeleteAuthor))

	mux.Handle("GET /publishers", h.HandleListPublishers)
	mux.Handle("GET /publishers/{id}", h.HandleGetPublisher)
	mux.Handle("POST /publishers", staff(h.HandleCreatePublisher))
	mux.Handle("PUT /publishers/{id}", staff(h.HandleUpdatePublisher))
	mux.Handle("DELETE /publishers/{id}", staff(h.HandleDeletePublisher))

	mux.Handle("GET /genres", h.HandleListGenres)
	mux.Handle("POST /genres", staff(h.HandleCreateGenre))
}
