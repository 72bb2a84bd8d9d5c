package server

import (
	"errors"
	"net/http"
	"regexp"

	"chatrelay/internal/auth"
	"chatrelay/internal/config"
	"chatrelay/internal/service"
	"chatrelay/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var tokenParam = regexp.MustCompile(`^[0-9a-z]+$`)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	cfg     config.Config
	userSvc *service.UserService
	hub     *ws.Hub
}

func NewHandler(cfg config.Config, userSvc *service.UserService, hub *ws.Hub) *Handler {
	return &Handler{cfg: cfg, userSvc: userSvc, hub: hub}
}

// Index 渲染注册/登录页。
func (h *Handler) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{"Error": c.Query("error")})
}

// Register 处理表单注册。成功后重定向回首页，失败按错误类型返回不同状态码。
func (h *Handler) Register(c *gin.Context) {
	login := c.PostForm("login")
	_, err := h.userSvc.Register(c.Request.Context(), login, c.PostForm("password"))
	switch {
	case err == nil:
		c.Redirect(http.StatusSeeOther, "/")
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "login and password are required"})
	case errors.Is(err, service.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "login taken"})
	default:
		log.Error().Err(err).Str("login", login).Msg("register")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
	}
}

// Login 处理表单登录。成功后写入会话 cookie 并跳转到带 token 的聊天页。
func (h *Handler) Login(c *gin.Context) {
	login := c.PostForm("login")
	res, err := h.userSvc.Login(c.Request.Context(), login, c.PostForm("password"))
	switch {
	case err == nil:
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(auth.SessionCookie, res.Session, h.cfg.CacheTTLSeconds, "/", "", h.cfg.Env != "dev", true)
		c.Redirect(http.StatusSeeOther, "/chat/"+res.ChatToken)
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "login and password are required"})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	default:
		log.Error().Err(err).Str("login", login).Msg("login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
	}
}

// ChatPage 渲染聊天页，需要已登录。
func (h *Handler) ChatPage(c *gin.Context) {
	token := c.Param("token")
	if !tokenParam.MatchString(token) {
		c.Status(http.StatusNotFound)
		return
	}
	c.HTML(http.StatusOK, "chat.html", gin.H{
		"Port":  h.cfg.Port,
		"Token": token,
		"Login": auth.GetUser(c).Login,
	})
}

// Online 返回在线连接的显示名。
func (h *Handler) Online(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"online": h.hub.Online(), "names": h.hub.Names()})
}
