package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/avelar/bookshelf-be/internal/api/handlers"
	"github.com/avelar/bookshelf-be/internal/auth"
	"github.com/avelar/bookshelf-be/internal/services"
	"github.com/avelar/bookshelf-be/internal/storage"
)

// NewRouter creates and configures a new Chi router.
func NewRouter(userService services.UserServiceProvider, bookService services.BookServiceProvider, media *storage.MediaStore) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	// CORS configuration for development
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"}, // Adjust for your frontend URL
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	userHandler := handlers.NewUserHandler(userService)
	bookHandler := handlers.NewBookHandler(bookService, media)

	// Uploaded assets are served under /media, matching the paths stored on
	// book records.
	fileServer := http.StripPrefix("/media/", http.FileServer(http.Dir(media.Root())))
	r.Get("/media/*", fileServer.ServeHTTP)

	// API versioning
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Post("/register", userHandler.Register)
			r.Post("/login", userHandler.Login)

			r.Group(func(r chi.Router) {
				r.Use(auth.JWTMiddleware())
				r.Get("/me", userHandler.GetMe)
				r.Put("/me", userHandler.UpdateMe)
				r.Put("/me/password", userHandler.ChangePassword)
				r.Delete("/me", userHandler.DeleteMe)
			})
		})

		r.Route("/books", func(r chi.Router) {
			r.Use(auth.JWTMiddleware())
			r.Get("/", bookHandler.List)
			r.Post("/", bookHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", bookHandler.Get)
				r.Put("/", bookHandler.Update)
				r.Patch("/", bookHandler.PartialUpdate)
				r.Delete("/", bookHandler.Delete)
				r.Post("/upload-image", bookHandler.UploadImage)
			})
		})
	})

	return r
}
