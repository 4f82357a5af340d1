// Package apistub is an in-memory copy of the expense REST API used for local
// development and as the backend double in tests.
package apistub

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"expensedash/internal/core"
	applog "expensedash/internal/log"
)

const userIDKey = "user_id"

type user struct {
	ID           string
	Name         string
	Email        string
	PasswordHash []byte
}

type record struct {
	core.Expense
	UserID string
}

// Server holds users and expenses in memory.
type Server struct {
	mu       sync.RWMutex
	users    map[string]*user // by email
	records  []*record
	nextUser int
	nextID   int

	tokens *TokenService
	logger *applog.Logger
}

// New creates an empty stub.
func New(tokens *TokenService, logger *applog.Logger) *Server {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Server{
		users:  make(map[string]*user),
		tokens: tokens,
		logger: logger.WithComponent(applog.ComponentStub),
	}
}

// Handler returns the gin engine serving the REST surface.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	auth := r.Group("/auth")
	auth.POST("/register", s.register)
	auth.POST("/login", s.login)
	auth.GET("/me", s.requireAuth(), s.me)

	exp := r.Group("/expenses", s.requireAuth())
	exp.GET("", s.listExpenses)
	exp.POST("", s.createExpense)
	exp.PUT("/:id", s.updateExpense)
	exp.DELETE("/:id", s.deleteExpense)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("Stub request",
			applog.FieldMethod, c.Request.Method,
			applog.FieldPath, c.Request.URL.Path,
			applog.FieldStatusCode, c.Writer.Status(),
			applog.FieldDuration, time.Since(start).Milliseconds())
	}
}

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Authorization header required"})
			return
		}
		tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid Authorization header format"})
			return
		}
		userID, err := s.tokens.ParseToken(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired token"})
			return
		}
		if s.userByID(userID) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unknown user"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type userResponse struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type expenseRequest struct {
	Title    string          `json:"title" binding:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Category string          `json:"category" binding:"required"`
	Date     string          `json:"date" binding:"required"`
}

type expenseResponse struct {
	ID       string      `json:"_id"`
	Title    string      `json:"title"`
	Amount   json.Number `json:"amount"`
	Category string      `json:"category"`
	Date     string      `json:"date"`
}

func toUserResponse(u *user) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email}
}

func toExpenseResponse(r *record) expenseResponse {
	return expenseResponse{
		ID:       r.ID,
		Title:    r.Title,
		Amount:   json.Number(r.Amount.String()),
		Category: r.Category,
		Date:     r.Date,
	}
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid registration data"})
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to register"})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	s.mu.Lock()
	if _, exists := s.users[email]; exists {
		s.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"message": "Email already registered"})
		return
	}
	s.nextUser++
	u := &user{
		ID:           "u" + strconv.Itoa(s.nextUser),
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: hash,
	}
	s.users[email] = u
	s.mu.Unlock()

	s.respondWithToken(c, http.StatusCreated, u)
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid login data"})
		return
	}
	s.mu.RLock()
	u := s.users[strings.ToLower(strings.TrimSpace(req.Email))]
	s.mu.RUnlock()
	if u == nil || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
		return
	}
	s.respondWithToken(c, http.StatusOK, u)
}

func (s *Server) respondWithToken(c *gin.Context, status int, u *user) {
	token, err := s.tokens.GenerateToken(u.ID)
	if err != nil {
		s.logger.Error("Failed to sign token", applog.FieldError, err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to issue token"})
		return
	}
	c.JSON(status, gin.H{"token": token, "user": toUserResponse(u)})
}

func (s *Server) me(c *gin.Context) {
	u := s.userByID(c.GetString(userIDKey))
	c.JSON(http.StatusOK, gin.H{"user": toUserResponse(u)})
}

func (s *Server) listExpenses(c *gin.Context) {
	userID := c.GetString(userIDKey)
	s.mu.RLock()
	out := make([]expenseResponse, 0)
	for _, r := range s.records {
		if r.UserID == userID {
			out = append(out, toExpenseResponse(r))
		}
	}
	s.mu.RUnlock()
	c.JSON(http.StatusOK, out)
}

func (s *Server) createExpense(c *gin.Context) {
	req, ok := bindExpense(c)
	if !ok {
		return
	}
	s.mu.Lock()
	s.nextID++
	r := &record{
		Expense: core.Expense{
			ID:       "e" + strconv.Itoa(s.nextID),
			Title:    req.Title,
			Amount:   req.Amount,
			Category: req.Category,
			Date:     req.Date,
		},
		UserID: c.GetString(userIDKey),
	}
	s.records = append(s.records, r)
	resp := toExpenseResponse(r)
	s.mu.Unlock()

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) updateExpense(c *gin.Context) {
	req, ok := bindExpense(c)
	if !ok {
		return
	}
	s.mu.Lock()
	r := s.findLocked(c.GetString(userIDKey), c.Param("id"))
	if r == nil {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"message": "Expense not found"})
		return
	}
	r.Title = req.Title
	r.Amount = req.Amount
	r.Category = req.Category
	r.Date = req.Date
	resp := toExpenseResponse(r)
	s.mu.Unlock()

	c.JSON(http.StatusOK, resp)
}

func (s *Server) deleteExpense(c *gin.Context) {
	userID, id := c.GetString(userIDKey), c.Param("id")
	s.mu.Lock()
	idx := -1
	for i, r := range s.records {
		if r.ID == id && r.UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"message": "Expense not found"})
		return
	}
	s.records = append(s.records[:idx], s.records[idx+1:]...)
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"message": "Expense deleted"})
}

// bindExpense validates the body and stores the date as a midnight UTC
// timestamp, the shape a document store hands back.
func bindExpense(c *gin.Context) (expenseRequest, bool) {
	var req expenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid expense data"})
		return req, false
	}
	if !req.Amount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Amount must be positive"})
		return req, false
	}
	t, ok := core.ParseDate(req.Date)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid date"})
		return req, false
	}
	req.Date = t.Format("2006-01-02T15:04:05.000Z")
	return req, true
}

func (s *Server) findLocked(userID, id string) *record {
	for _, r := range s.records {
		if r.ID == id && r.UserID == userID {
			return r
		}
	}
	return nil
}

func (s *Server) userByID(id string) *user {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// Seed inserts a record for the user with the given email. Used by tests and
// the dev binary's demo data.
func (s *Server) Seed(email string, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[strings.ToLower(email)]
	if u == nil {
		return errors.New("unknown user " + email)
	}
	s.nextID++
	if e.ID == "" {
		e.ID = "e" + strconv.Itoa(s.nextID)
	}
	s.records = append(s.records, &record{Expense: e, UserID: u.ID})
	return nil
}
