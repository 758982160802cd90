package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/avelar/bookshelf-be/internal/auth"
	"github.com/avelar/bookshelf-be/internal/models"
	"github.com/avelar/bookshelf-be/internal/services"
	"github.com/avelar/bookshelf-be/internal/storage"
)

// maxImageUploadBytes caps multipart image uploads.
const maxImageUploadBytes = 10 << 20

// maxFieldLen mirrors the column widths of the string fields.
const maxFieldLen = 255

// BookHandler handles HTTP requests for the book resource.
type BookHandler struct {
	service services.BookServiceProvider
	media   *storage.MediaStore
}

// NewBookHandler creates a new BookHandler.
func NewBookHandler(service services.BookServiceProvider, media *storage.MediaStore) *BookHandler {
	return &BookHandler{service: service, media: media}
}

// bookPayload is the write side of the full book projection. Fields are
// pointers so a PATCH can distinguish absent from empty.
type bookPayload struct {
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	ReleaseDate *string `json:"release_date"`
	Genre       *string `json:"genre"`
	Description *string `json:"description"`
}

// apply validates the payload and copies it onto book. With partial set,
// absent fields keep their current values; otherwise every required field
// must be present.
func (p *bookPayload) apply(book *models.Book, partial bool) error {
	required := map[string]*string{
		"title":        p.Title,
		"author":       p.Author,
		"genre":        p.Genre,
		"release_date": p.ReleaseDate,
		"description":  p.Description,
	}
	if !partial {
		for field, val := range required {
			if val == nil {
				return services.NewValidationError(field, "is required")
			}
		}
	}

	for field, val := range map[string]*string{"title": p.Title, "author": p.Author, "genre": p.Genre} {
		if val == nil {
			continue
		}
		if *val == "" {
			return services.NewValidationError(field, "must not be empty")
		}
		if len(*val) > maxFieldLen {
			return services.NewValidationError(field, "must be at most 255 characters")
		}
	}

	if p.Title != nil {
		book.Title = *p.Title
	}
	if p.Author != nil {
		book.Author = *p.Author
	}
	if p.Genre != nil {
		book.Genre = *p.Genre
	}
	if p.Description != nil {
		book.Description = *p.Description
	}
	if p.ReleaseDate != nil {
		date, err := models.ParseDate(*p.ReleaseDate)
		if err != nil {
			return services.NewValidationError("release_date", "must be a valid YYYY-MM-DD date")
		}
		book.ReleaseDate = date
	}
	return nil
}

// bookResponse is the full read projection of a book.
type bookResponse struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Author      string      `json:"author"`
	ReleaseDate models.Date `json:"release_date"`
	Genre       string      `json:"genre"`
	Description string      `json:"description"`
	Image       *string     `json:"image"`
}

// bookImageResponse is the image-only projection used by the upload endpoint.
type bookImageResponse struct {
	ID    string  `json:"id"`
	Image *string `json:"image"`
}

func imageURL(book models.Book) *string {
	if book.Image == "" {
		return nil
	}
	url := "/media/" + book.Image
	return &url
}

func newBookResponse(book models.Book) bookResponse {
	return bookResponse{
		ID:          book.ID,
		Title:       book.Title,
		Author:      book.Author,
		ReleaseDate: book.ReleaseDate,
		Genre:       book.Genre,
		Description: book.Description,
		Image:       imageURL(book),
	}
}

// callerID extracts the authenticated user's id from the request context.
func callerID(r *http.Request) (string, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return "", false
	}
	return claims.UserID, true
}

// List returns the caller's books, newest first.
func (h *BookHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Missing auth token")
		return
	}

	books, err := h.service.GetBooksForUser(userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to list books")
		respondServiceError(w, err)
		return
	}

	out := make([]bookResponse, 0, len(books))
	for _, book := range books {
		out = append(out, newBookResponse(book))
	}
	respondJSON(w, http.StatusOK, out)
}

// Create adds a new book owned by the caller.
func (h *BookHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Missing auth token")
		return
	}

	var payload bookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var book models.Book
	if err := payload.apply(&book, false); err != nil {
		respondServiceError(w, err)
		return
	}

	created, err := h.service.CreateBook(userID, book)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to create book")
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, newBookResponse(created))
}

// Get retrieves one of the caller's books.
func (h *BookHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Missing auth token")
		return
	}

	book, err := h.service.GetBook(userID, chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newBookResponse(book))
}

// Update replaces all writable fields of a book (PUT).
func (h *BookHandler) Update(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, false)
}

// PartialUpdate updates only the fields present in the payload (PATCH).
func (h *BookHandler) PartialUpdate(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, true)
}

func (h *BookHandler) update(w http.ResponseWriter, r *http.Request, partial bool) {
	userID, ok := callerID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Missing auth token")
		return
	}
	id := chi.URLParam(r, "id")

	var payload bookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	book, err := h.service.GetBook(userID, id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if err := payload.apply(&book, partial); err != nil {
		respondServiceError(w, err)
		return
	}

	updated, err := h.service.UpdateBook(userID, id, book)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("book_id", id).Msg("Failed to update book")
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newBookResponse(updated))
}

// Delete removes one of the caller's books.
func (h *BookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Missing auth token")
		return
	}

	if err := h.service.DeleteBook(userID, chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadImage replaces a book's cover image. The multipart field must be
// named "image" and hold a decodable image; the stored file gets a fresh
// random name, never the client's.
func (h *BookHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Missing auth token")
		return
	}
	id := chi.URLParam(r, "id")

	// Ownership check before anything touches disk.
	if _, err := h.service.GetBook(userID, id); err != nil {
		respondServiceError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageUploadBytes)
	if err := r.ParseMultipartForm(maxImageUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart body")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image: is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read upload")
		return
	}

	path, err := h.media.SaveBookImage(header.Filename, data)
	if err != nil {
		if err == storage.ErrNotImage {
			respondError(w, http.StatusBadRequest, "image: must be a valid image file")
			return
		}
		log.Error().Err(err).Str("book_id", id).Msg("Failed to store image")
		respondError(w, http.StatusInternalServerError, "Failed to store image")
		return
	}

	book, previous, err := h.service.AttachImage(userID, id, path)
	if err != nil {
		if rmErr := h.media.Remove(path); rmErr != nil {
			log.Warn().Err(rmErr).Str("path", path).Msg("Failed to remove stored image after failed attach")
		}
		log.Error().Err(err).Str("user_id", userID).Str("book_id", id).Msg("Failed to attach image")
		respondServiceError(w, err)
		return
	}

	if previous != "" && previous != path {
		if err := h.media.Remove(previous); err != nil {
			log.Warn().Err(err).Str("path", previous).Msg("Failed to remove replaced image")
		}
	}

	respondJSON(w, http.StatusOK, bookImageResponse{ID: book.ID, Image: imageURL(book)})
}
