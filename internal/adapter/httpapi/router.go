package httpapi

import (
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/ifiokjr/verily/internal/auth"
	"github.com/ifiokjr/verily/internal/platform/database"
	"github.com/ifiokjr/verily/internal/platform/metrics"
	"github.com/ifiokjr/verily/internal/shared"
)

// Options configures the router.
type Options struct {
	DB      database.Handle
	Auth    *auth.Service
	Metrics *metrics.Metrics
	Log     *slog.Logger
	// Development exposes sensitive error detail to clients.
	Development bool
}

type server struct {
	auth    *auth.Service
	metrics *metrics.Metrics
	log     *slog.Logger
	policy  shared.Policy
}

// NewRouter builds the gin engine serving every route.
func NewRouter(o Options) *gin.Engine {
	useJSONFieldNames()

	if o.Metrics == nil {
		o.Metrics = metrics.New()
	}
	if o.Log == nil {
		o.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &server{
		auth:    o.Auth,
		metrics: o.Metrics,
		log:     o.Log,
		policy:  shared.ClientPolicy(o.Development),
	}

	r := gin.New()
	r.Use(s.observe(), s.recovery(), withDatabase(o.DB))

	r.GET("/hello", hello)
	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(o.Metrics.Handler()))

	api := r.Group("/api")
	api.POST("/hello_world", helloWorld)
	if o.Auth != nil {
		api.POST("/signup", s.signup)
		api.POST("/login", s.login)
		api.POST("/refresh", s.refresh)

		authed := api.Group("", s.requireUser())
		authed.GET("/me", s.me)
		authed.GET("/sessions", s.sessions)
		authed.POST("/logout", s.logout)
	}
	return r
}

// withDatabase publishes h in every request context so handlers can
// fetch it with database.FromContext.
func withDatabase(h database.Handle) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.Valid() {
			c.Request = c.Request.WithContext(database.WithHandle(c.Request.Context(), h))
		}
		c.Next()
	}
}

func (s *server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		s.metrics.RecordHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), elapsed)
		s.log.LogAttrs(c.Request.Context(), slog.LevelDebug, "request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", elapsed),
		)
	}
}

func (s *server) recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, rec any) {
		s.fail(c, fmt.Errorf("panic: %v", rec))
	})
}

var tagNameOnce sync.Once

// useJSONFieldNames makes validation errors name fields the way clients
// send them.
func useJSONFieldNames() {
	tagNameOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
}
