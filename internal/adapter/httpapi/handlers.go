package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ifiokjr/verily/internal/auth"
	"github.com/ifiokjr/verily/internal/platform/database"
	"github.com/ifiokjr/verily/internal/store"
)

const (
	// HelloWorld is the reply of the hello_world server function.
	HelloWorld = "Hello, world!"

	userKey       = "verily.user"
	healthTimeout = 2 * time.Second
)

type credentials struct {
	Username string `json:"username" binding:"required,min=3,max=32,alphanum"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required,uuid"`
}

type userResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

func hello(c *gin.Context) {
	c.String(http.StatusOK, "Hello, World!")
}

func helloWorld(c *gin.Context) {
	c.JSON(http.StatusOK, HelloWorld)
}

func (s *server) healthz(c *gin.Context) {
	h, err := database.FromContext(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()
	if err := h.Ping(ctx); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"dialect":          h.Dialect(),
		"open_connections": h.Stats().OpenConnections,
	})
}

// sessionContext carries the caller's User-Agent into the session it opens.
func sessionContext(c *gin.Context) context.Context {
	return auth.WithClient(c.Request.Context(), c.Request.UserAgent())
}

func (s *server) signup(c *gin.Context) {
	var req credentials
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	sess, err := s.auth.Signup(sessionContext(c), req.Username, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (s *server) login(c *gin.Context) {
	var req credentials
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	sess, err := s.auth.Login(sessionContext(c), req.Username, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *server) refresh(c *gin.Context) {
	var req refreshRequest
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	sess, err := s.auth.Refresh(sessionContext(c), uuid.MustParse(req.RefreshToken))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// requireUser authenticates the bearer token and stores the user on the
// gin context.
func (s *server) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := s.auth.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			s.fail(c, err)
			return
		}
		c.Set(userKey, u)
		c.Next()
	}
}

func currentUser(c *gin.Context) store.User {
	return c.MustGet(userKey).(store.User)
}

func (s *server) me(c *gin.Context) {
	u := currentUser(c)
	c.JSON(http.StatusOK, userResponse{ID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt})
}

func (s *server) logout(c *gin.Context) {
	if err := s.auth.Logout(c.Request.Context(), currentUser(c).ID); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) sessions(c *gin.Context) {
	list, err := s.auth.Sessions(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
