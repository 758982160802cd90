package services

import (
	"database/sql"

	"github.com/google/uuid"

	"github.com/avelar/bookshelf-be/internal/models"
)

// BookServiceProvider defines the interface for book services. Every
// operation is scoped to the owning user: a book id belonging to another
// user behaves exactly like a missing id.
type BookServiceProvider interface {
	GetBooksForUser(userID string) ([]models.Book, error)
	GetBook(userID, id string) (models.Book, error)
	CreateBook(userID string, book models.Book) (models.Book, error)
	UpdateBook(userID, id string, book models.Book) (models.Book, error)
	DeleteBook(userID, id string) error
	AttachImage(userID, id, imagePath string) (models.Book, string, error)
}

// BookService provides business logic for book management.
type BookService struct {
	db *sql.DB
}

// NewBookService creates a new BookService.
func NewBookService(db *sql.DB) *BookService {
	return &BookService{db: db}
}

// scanBook is a helper to scan a book from a row or rows object.
func scanBook(scanner interface{ Scan(...interface{}) error }) (models.Book, error) {
	var book models.Book
	var image sql.NullString

	err := scanner.Scan(
		&book.ID, &book.UserID, &book.Title, &book.Author,
		&book.ReleaseDate, &book.Genre, &book.Description, &image,
		&book.CreatedAt,
	)
	if err != nil {
		return book, err
	}

	book.Image = image.String
	return book, nil
}

const bookColumns = "id, user_id, title, author, release_date, genre, description, image, created_at"

// GetBooksForUser retrieves all books owned by a user, newest first.
func (s *BookService) GetBooksForUser(userID string) ([]models.Book, error) {
	// rowid tiebreak keeps insertion order within the same timestamp second
	const query = "SELECT " + bookColumns + " FROM books WHERE user_id = ? ORDER BY created_at DESC, rowid DESC"
	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := []models.Book{}
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

// GetBook retrieves a single book by id, only if owned by the user.
func (s *BookService) GetBook(userID, id string) (models.Book, error) {
	row := s.db.QueryRow("SELECT "+bookColumns+" FROM books WHERE id = ? AND user_id = ?", id, userID)

	book, err := scanBook(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Book{}, ErrNotFound
		}
		return models.Book{}, err
	}
	return book, nil
}

// CreateBook adds a new book owned by the user. Any owner in the incoming
// record is ignored.
func (s *BookService) CreateBook(userID string, book models.Book) (models.Book, error) {
	book.ID = uuid.New().String()
	book.UserID = userID

	const query = "INSERT INTO books(id, user_id, title, author, release_date, genre, description) VALUES(?, ?, ?, ?, ?, ?, ?)"
	stmt, err := s.db.Prepare(query)
	if err != nil {
		return models.Book{}, err
	}
	defer stmt.Close()

	_, err = stmt.Exec(book.ID, book.UserID, book.Title, book.Author, book.ReleaseDate, book.Genre, book.Description)
	if err != nil {
		return models.Book{}, err
	}

	return s.GetBook(userID, book.ID)
}

// UpdateBook updates an existing book's fields, only if owned by the user.
// The stored image is left untouched; AttachImage manages it.
func (s *BookService) UpdateBook(userID, id string, book models.Book) (models.Book, error) {
	const query = "UPDATE books SET title = ?, author = ?, release_date = ?, genre = ?, description = ? WHERE id = ? AND user_id = ?"
	stmt, err := s.db.Prepare(query)
	if err != nil {
		return models.Book{}, err
	}
	defer stmt.Close()

	res, err := stmt.Exec(book.Title, book.Author, book.ReleaseDate, book.Genre, book.Description, id, userID)
	if err != nil {
		return models.Book{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.Book{}, ErrNotFound
	}

	return s.GetBook(userID, id)
}

// DeleteBook removes a book, only if owned by the user.
func (s *BookService) DeleteBook(userID, id string) error {
	res, err := s.db.Exec("DELETE FROM books WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// AttachImage records a newly stored image path on a book, only if owned by
// the user. Returns the updated book and the previous image path, empty if
// the book had none, so the caller can clean up the stale asset.
func (s *BookService) AttachImage(userID, id, imagePath string) (models.Book, string, error) {
	current, err := s.GetBook(userID, id)
	if err != nil {
		return models.Book{}, "", err
	}

	_, err = s.db.Exec("UPDATE books SET image = ? WHERE id = ? AND user_id = ?", imagePath, id, userID)
	if err != nil {
		return models.Book{}, "", err
	}

	updated, err := s.GetBook(userID, id)
	if err != nil {
		return models.Book{}, "", err
	}
	return updated, current.Image, nil
}
