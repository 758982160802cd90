package api_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelar/bookshelf-be/internal/api"
	"github.com/avelar/bookshelf-be/internal/database"
	"github.com/avelar/bookshelf-be/internal/services"
	"github.com/avelar/bookshelf-be/internal/storage"
)

var pngBytes = append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, []byte("fake image body")...)

type testEnv struct {
	handler http.Handler
	db      *sql.DB
	media   *storage.MediaStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.New(":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db))

	media := storage.NewMediaStore(t.TempDir())
	handler := api.NewRouter(services.NewUserService(db), services.NewBookService(db), media)
	return &testEnv{handler: handler, db: db, media: media}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// register creates an account and returns a bearer token for it.
func (e *testEnv) register(t *testing.T, email string) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/v1/users/register", "", map[string]string{
		"email": email, "name": "Test User", "password": "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/api/v1/users/login", "", map[string]string{
		"email": email, "password": "password123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func (e *testEnv) createBook(t *testing.T, token string, fields map[string]string) map[string]interface{} {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/v1/books/", token, fields)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var book map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &book))
	return book
}

var sampleBook = map[string]string{
	"title":        "T",
	"author":       "Au",
	"release_date": "2030-09-12",
	"genre":        "G",
	"description":  "D",
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	env := newTestEnv(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/books/"},
		{http.MethodPost, "/api/v1/books/"},
		{http.MethodGet, "/api/v1/books/some-id/"},
		{http.MethodPut, "/api/v1/books/some-id/"},
		{http.MethodDelete, "/api/v1/books/some-id/"},
		{http.MethodPost, "/api/v1/books/some-id/upload-image/"},
		{http.MethodGet, "/api/v1/users/me"},
	} {
		rec := env.do(t, tc.method, tc.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
		assert.Contains(t, rec.Body.String(), "error")
	}
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/users/register", "", map[string]string{
		"email": "a@example.com", "name": "A", "password": "pw",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pw")
	assert.NotContains(t, rec.Body.String(), "password")

	// Duplicate email
	rec = env.do(t, http.MethodPost, "/api/v1/users/register", "", map[string]string{
		"email": "a@example.com", "name": "B", "password": "pw2",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Empty email
	rec = env.do(t, http.MethodPost, "/api/v1/users/register", "", map[string]string{
		"name": "C", "password": "pw",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@example.com")

	rec := env.do(t, http.MethodPost, "/api/v1/users/login", "", map[string]string{
		"email": "a@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAndListBooks(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "a@example.com")

	created := env.createBook(t, token, sampleBook)
	assert.NotEmpty(t, created["id"])
	assert.Equal(t, "T", created["title"])
	assert.Equal(t, "2030-09-12", created["release_date"])
	assert.Nil(t, created["image"])

	rec := env.do(t, http.MethodGet, "/api/v1/books/", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var books []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &books))
	require.Len(t, books, 1)

	got := books[0]
	assert.Equal(t, created["id"], got["id"])
	assert.Equal(t, "T", got["title"])
	assert.Equal(t, "Au", got["author"])
	assert.Equal(t, "2030-09-12", got["release_date"])
	assert.Equal(t, "G", got["genre"])
	assert.Equal(t, "D", got["description"])
}

func TestCreateBook_Validation(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "a@example.com")

	missingTitle := map[string]string{"author": "Au", "release_date": "2030-09-12", "genre": "G"}
	rec := env.do(t, http.MethodPost, "/api/v1/books/", token, missingTitle)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	badDate := map[string]string{"title": "T", "author": "Au", "release_date": "tomorrow", "genre": "G"}
	rec = env.do(t, http.MethodPost, "/api/v1/books/", token, badDate)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	tooLong := map[string]string{"title": strings.Repeat("x", 256), "author": "Au", "release_date": "2030-09-12", "genre": "G"}
	rec = env.do(t, http.MethodPost, "/api/v1/books/", token, tooLong)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBooks_OwnerIsolation(t *testing.T) {
	env := newTestEnv(t)
	tokenU := env.register(t, "u@example.com")
	tokenV := env.register(t, "v@example.com")

	book := env.createBook(t, tokenU, sampleBook)
	id := book["id"].(string)

	rec := env.do(t, http.MethodGet, "/api/v1/books/", tokenV, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var books []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &books))
	assert.Empty(t, books)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/books/%s/", id), tokenV, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/books/%s/", id), tokenV, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/books/%s/", id), tokenU, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateBook(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "a@example.com")
	book := env.createBook(t, token, sampleBook)
	id := book["id"].(string)

	// Full update (PUT) requires every field.
	rec := env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/books/%s/", id), token, map[string]string{"title": "Only title"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	full := map[string]string{"title": "T2", "author": "Au2", "release_date": "2031-01-01", "genre": "G2", "description": "D2"}
	rec = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/books/%s/", id), token, full)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Partial update (PATCH) leaves the rest untouched.
	rec = env.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/books/%s/", id), token, map[string]string{"title": "T3"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "T3", got["title"])
	assert.Equal(t, "Au2", got["author"])
	assert.Equal(t, "2031-01-01", got["release_date"])
}

func TestDeleteBook(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "a@example.com")
	book := env.createBook(t, token, sampleBook)
	id := book["id"].(string)

	rec := env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/books/%s/", id), token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/books/%s/", id), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func (e *testEnv) uploadImage(t *testing.T, token, bookID, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/books/%s/upload-image/", bookID), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestUploadImage(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "a@example.com")
	book := env.createBook(t, token, sampleBook)
	id := book["id"].(string)

	rec := env.uploadImage(t, token, id, "original-name.png", pngBytes)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		ID    string  `json:"id"`
		Image *string `json:"image"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.ID)
	require.NotNil(t, resp.Image)
	assert.True(t, strings.HasPrefix(*resp.Image, "/media/uploads/book/"), "image was %q", *resp.Image)
	assert.NotContains(t, *resp.Image, "original-name")
	assert.True(t, strings.HasSuffix(*resp.Image, ".png"))

	// The stored file is on disk and served by the media file server.
	relPath := strings.TrimPrefix(*resp.Image, "/media/")
	_, err := os.Stat(env.media.Resolve(relPath))
	require.NoError(t, err)

	mediaRec := env.do(t, http.MethodGet, *resp.Image, "", nil)
	assert.Equal(t, http.StatusOK, mediaRec.Code)

	// The full projection now carries the image URL.
	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/books/%s/", id), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, *resp.Image, got["image"])
}

func TestUploadImage_ReplaceCleansUpOldFile(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "a@example.com")
	book := env.createBook(t, token, sampleBook)
	id := book["id"].(string)

	rec := env.uploadImage(t, token, id, "one.png", pngBytes)
	require.Equal(t, http.StatusOK, rec.Code)
	var first struct {
		Image *string `json:"image"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))

	rec = env.uploadImage(t, token, id, "one.png", pngBytes)
	require.Equal(t, http.StatusOK, rec.Code)
	var second struct {
		Image *string `json:"image"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))

	assert.NotEqual(t, *first.Image, *second.Image, "re-uploading identical content must produce a fresh key")

	oldRel := strings.TrimPrefix(*first.Image, "/media/")
	_, err := os.Stat(env.media.Resolve(oldRel))
	assert.True(t, os.IsNotExist(err), "replaced image should be cleaned up")
}

func TestUploadImage_NonImageRejected(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "a@example.com")
	book := env.createBook(t, token, sampleBook)
	id := book["id"].(string)

	rec := env.uploadImage(t, token, id, "first.png", pngBytes)
	require.Equal(t, http.StatusOK, rec.Code)
	var first struct {
		Image *string `json:"image"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))

	rec = env.uploadImage(t, token, id, "evil.png", []byte("this is not an image"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Existing image untouched.
	getRec := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/books/%s/", id), token, nil)
	require.Equal(t, http.StatusOK, getRec.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &got))
	assert.Equal(t, *first.Image, got["image"])
}

func TestUploadImage_MissingField(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "a@example.com")
	book := env.createBook(t, token, sampleBook)
	id := book["id"].(string)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("not_image", "oops"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/books/%s/upload-image/", id), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserMe(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "me@example.com")

	rec := env.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "me@example.com", me["email"])

	rec = env.do(t, http.MethodPut, "/api/v1/users/me", token, map[string]string{
		"name": "Renamed", "email": "me@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "Renamed", me["name"])

	rec = env.do(t, http.MethodPut, "/api/v1/users/me/password", token, map[string]string{
		"currentPassword": "password123", "newPassword": "better-password",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/users/login", "", map[string]string{
		"email": "me@example.com", "password": "better-password",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteMe_RemovesOwnedBooks(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "gone@example.com")
	env.createBook(t, token, sampleBook)

	rec := env.do(t, http.MethodDelete, "/api/v1/users/me", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	var count int
	require.NoError(t, env.db.QueryRow("SELECT COUNT(*) FROM books").Scan(&count))
	assert.Zero(t, count)
}
