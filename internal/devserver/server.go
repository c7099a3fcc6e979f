package devserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"pai-chat-client/internal/apperr"
	"pai-chat-client/internal/model"
	"pai-chat-client/pkg/hash"
	"pai-chat-client/pkg/log"
	"pai-chat-client/pkg/token"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 本地开发后端，允许所有来源
	},
}

// Server 是开发后端的 HTTP 服务。
type Server struct {
	store  Store
	jwt    *token.JWTManager
	engine *gin.Engine
}

// New 创建并装配一个开发后端。
func New(store Store, jwtManager *token.JWTManager) *Server {
	s := &Server{store: store, jwt: jwtManager}

	r := gin.New()
	r.Use(requestLogger(), gin.Recovery())

	auth := r.Group("/auth")
	{
		auth.POST("/register", s.register)
		auth.POST("/login", s.login)
		auth.GET("/me", s.authRequired(), s.me)
	}

	convs := r.Group("/conversations", s.authRequired())
	{
		convs.GET("/", s.listConversations)
		convs.POST("/", s.createConversation)
		convs.GET("/:id", s.getConversation)
		convs.PUT("/:id", s.updateConversation)
		convs.DELETE("/:id", s.deleteConversation)
	}

	// 聊天对游客开放：没有 conversation_id 的轮次不做持久化
	r.POST("/chat", s.authOptional(), s.chat)
	r.GET("/chat/stream", s.authOptional(), s.chatStream)

	favorites := r.Group("/api/favorites", s.authRequired())
	{
		favorites.GET("/", s.listFavorites)
		favorites.POST("/", s.createFavorite)
		favorites.PUT("/:id", s.updateFavorite)
		favorites.DELETE("/:id", s.deleteFavorite)
	}

	s.engine = r
	return s
}

// Handler 返回底层的 http.Handler，测试中配合 httptest 使用。
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run 启动服务并阻塞。
func (s *Server) Run(addr string) error {
	log.Infof("开发后端启动于 %s", addr)
	return s.engine.Run(addr)
}

// fail 以 {"detail": ...} 结构返回错误，状态码按错误分类映射。
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthorized):
		status = http.StatusUnauthorized
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": err.Error()})
}

// requestLogger 记录每个请求的方法、路径、状态码和耗时。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Infow("HTTP Request",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
	}
}

// bearerClaims 从 Authorization 头解析并验证 token。
func (s *Server) bearerClaims(c *gin.Context) (*token.CustomClaims, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("%w: missing authorization header", apperr.ErrUnauthorized)
	}
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return nil, fmt.Errorf("%w: malformed authorization header", apperr.ErrUnauthorized)
	}
	claims, err := s.jwt.VerifyToken(strings.TrimPrefix(authHeader, bearerPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid or expired token", apperr.ErrUnauthorized)
	}
	return claims, nil
}

// authRequired 验证 bearer token 并把用户 ID 放入上下文。
func (s *Server) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := s.bearerClaims(c)
		if err != nil {
			fail(c, err)
			return
		}
		c.Set("userID", claims.UserID)
		c.Next()
	}
}

// authOptional 在有凭证时解析用户身份，没有时按游客放行。
func (s *Server) authOptional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != "" {
			claims, err := s.bearerClaims(c)
			if err != nil {
				fail(c, err)
				return
			}
			c.Set("userID", claims.UserID)
		}
		c.Next()
	}
}

func userID(c *gin.Context) int64 {
	return c.GetInt64("userID")
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, fmt.Errorf("%w: email and password are required", apperr.ErrValidation))
		return
	}

	hashed, err := hash.HashPassword(req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	u, err := s.store.CreateUser(c.Request.Context(), req.Email, hashed)
	if err != nil {
		fail(c, err)
		return
	}

	tokenString, err := s.jwt.GenerateToken(u.ID, u.Email)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tokenString, "token_type": "bearer"})
}

func (s *Server) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, fmt.Errorf("%w: email and password are required", apperr.ErrValidation))
		return
	}

	u, err := s.store.FindUserByEmail(c.Request.Context(), req.Email)
	if err != nil || !hash.CheckPassword(req.Password, u.Password) {
		fail(c, fmt.Errorf("%w: invalid credentials", apperr.ErrUnauthorized))
		return
	}

	tokenString, err := s.jwt.GenerateToken(u.ID, u.Email)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tokenString, "token_type": "bearer"})
}

func (s *Server) me(c *gin.Context) {
	u, err := s.store.FindUserByID(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, model.UserProfile{ID: u.ID, Email: u.Email})
}

func (s *Server) listConversations(c *gin.Context) {
	convs, err := s.store.ListConversations(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

type createConversationRequest struct {
	Title    string `json:"title"`
	FolderID *int64 `json:"folder_id"`
}

func (s *Server) createConversation(c *gin.Context) {
	req := createConversationRequest{Title: "New Chat"}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, fmt.Errorf("%w: invalid request body", apperr.ErrValidation))
		return
	}
	conv, err := s.store.CreateConversation(c.Request.Context(), userID(c), req.Title, req.FolderID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid id", apperr.ErrValidation)
	}
	return id, nil
}

func (s *Server) getConversation(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		fail(c, err)
		return
	}
	conv, err := s.store.GetConversation(c.Request.Context(), userID(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

type updateConversationRequest struct {
	Title string `json:"title" binding:"required"`
}

func (s *Server) updateConversation(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		fail(c, err)
		return
	}
	var req updateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, fmt.Errorf("%w: title is required", apperr.ErrValidation))
		return
	}
	conv, err := s.store.UpdateConversation(c.Request.Context(), userID(c), id, req.Title)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (s *Server) deleteConversation(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.store.DeleteConversation(c.Request.Context(), userID(c), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type favoriteRequest struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

func (r favoriteRequest) validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: title is required", apperr.ErrValidation)
	}
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("%w: url is required", apperr.ErrValidation)
	}
	return nil
}

func (s *Server) listFavorites(c *gin.Context) {
	items, err := s.store.ListFavorites(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) createFavorite(c *gin.Context) {
	var req favoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, fmt.Errorf("%w: invalid request body", apperr.ErrValidation))
		return
	}
	if err := req.validate(); err != nil {
		fail(c, err)
		return
	}
	item, err := s.store.CreateFavorite(c.Request.Context(), userID(c), strings.TrimSpace(req.Title), strings.TrimSpace(req.URL))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (s *Server) updateFavorite(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		fail(c, err)
		return
	}
	var req favoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, fmt.Errorf("%w: invalid request body", apperr.ErrValidation))
		return
	}
	if err := req.validate(); err != nil {
		fail(c, err)
		return
	}
	item, err := s.store.UpdateFavorite(c.Request.Context(), userID(c), id, strings.TrimSpace(req.Title), strings.TrimSpace(req.URL))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) deleteFavorite(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.store.DeleteFavorite(c.Request.Context(), userID(c), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
