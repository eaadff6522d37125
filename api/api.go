package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"elevenlab/auth"
	"elevenlab/feed"
	"elevenlab/purchase"
	"elevenlab/store"
)

type Config struct {
	CORSOrigins string
	// AccessLog enables per-request log lines.
	AccessLog bool
}

type Server struct {
	app       *fiber.App
	store     store.Store
	purchases *purchase.Service
	issuer    *auth.Issuer
	hub       *feed.Hub
}

// route binds a handler to a method and path. Protected routes require a
// session; scope names a path parameter that must equal the session email.
type route struct {
	method    string
	path      string
	protected bool
	scope     string
	handler   fiber.Handler
}

func New(cfg Config, st store.Store, purchases *purchase.Service, issuer *auth.Issuer, hub *feed.Hub) *Server {
	s := &Server{
		store:     st,
		purchases: purchases,
		issuer:    issuer,
		hub:       hub,
	}

	s.app = fiber.New(fiber.Config{
		ErrorHandler:          errorHandler,
		UnescapePath:          true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		DisableStartupMessage: true,
	})

	s.app.Use(recover.New())
	if cfg.AccessLog {
		s.app.Use(logger.New())
	}
	s.app.Use(corsMiddleware(cfg.CORSOrigins))

	guard := issuer.Guard()
	for _, r := range s.routes() {
		handlers := []fiber.Handler{}
		if r.protected {
			handlers = append(handlers, guard)
			if r.scope != "" {
				handlers = append(handlers, auth.SameEmail(r.scope))
			}
		}
		handlers = append(handlers, r.handler)
		s.app.Add(r.method, r.path, handlers...)
	}

	return s
}

// corsMiddleware allows credentials only for an explicit origin list. Browsers
// never send cookies to a wildcard origin and fiber refuses that setup.
func corsMiddleware(origins string) fiber.Handler {
	origins = strings.TrimSpace(origins)
	if origins == "" {
		origins = "*"
	}

	wildcard := origins == "*"
	if wildcard {
		logrus.Warn("CORS allows any origin, session cookies will not be sent cross-site")
	}

	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowCredentials: !wildcard,
	})
}

func (s *Server) routes() []route {
	return []route{
		{method: http.MethodGet, path: "/", handler: s.root},

		{method: http.MethodPost, path: "/add-food", protected: true, handler: s.addFood},
		{method: http.MethodGet, path: "/all-foods", handler: s.allFoods},
		{method: http.MethodGet, path: "/food/:id", handler: s.food},
		{method: http.MethodGet, path: "/top-foods", handler: s.topFoods},
		{method: http.MethodGet, path: "/search", handler: s.search},
		{method: http.MethodGet, path: "/my-foods/:email", protected: true, scope: "email", handler: s.myFoods},
		{method: http.MethodPut, path: "/update-food/:id", protected: true, handler: s.updateFood},

		{method: http.MethodPost, path: "/food-purchase", protected: true, handler: s.foodPurchase},
		{method: http.MethodGet, path: "/food-purchase/:email", protected: true, scope: "email", handler: s.myPurchases},
		{method: http.MethodDelete, path: "/my-order/:id", protected: true, handler: s.deleteOrder},

		{method: http.MethodPost, path: "/jwt", handler: s.login},
		{method: http.MethodPost, path: "/logout", handler: s.logout},

		{method: http.MethodGet, path: "/ws/purchases", handler: s.purchaseFeed()},
	}
}

// App exposes the fiber application, mostly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

func (s *Server) ListenTLS(addr, certFile, keyFile string) error {
	return s.app.ListenTLS(addr, certFile, keyFile)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := http.StatusInternalServerError
	msg := "internal server error"

	var fe *fiber.Error

	switch {
	case errors.As(err, &fe):
		code, msg = fe.Code, fe.Message
	case errors.Is(err, store.ErrNotFound):
		code, msg = http.StatusNotFound, "not found"
	case errors.Is(err, store.ErrInvalidID):
		code, msg = http.StatusBadRequest, "invalid id"
	case purchase.IsValidation(err):
		code, msg = http.StatusBadRequest, err.Error()
	default:
		logrus.WithError(err).
			WithField("method", c.Method()).
			WithField("path", c.Path()).
			Error("request failed")
	}

	return c.Status(code).JSON(fiber.Map{"message": msg})
}
