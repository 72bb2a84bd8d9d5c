package server

import (
	"embed"
	"html/template"
	"net/http"

	"chatrelay/internal/auth"
	"chatrelay/internal/config"
	"chatrelay/internal/metrics"
	"chatrelay/internal/mw"
	"chatrelay/internal/service"
	"chatrelay/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Deps 是路由需要的全部依赖，由 main 在启动时构造。
type Deps struct {
	Users    *service.UserService
	Resolver *auth.Resolver
	Gateway  *ws.Gateway

	// Limiter 控制单个 IP+路由的速率，为 nil 时不限速。
	Limiter *mw.RL
}

// SetupRouter 统一初始化 Gin 中间件、表单接口、页面以及 WebSocket 端点。
func SetupRouter(cfg config.Config, d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	if d.Limiter != nil {
		r.Use(d.Limiter.Middleware())
	}
	r.Use(mw.CORS(cfg.Env))
	r.SetHTMLTemplate(template.Must(template.ParseFS(templatesFS, "templates/*.html")))

	h := NewHandler(cfg, d.Users, d.Gateway.Hub())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	site := r.Group("")
	site.Use(auth.CurrentUser(cfg.SessionSecret, d.Resolver))
	site.GET("/", h.Index)
	site.POST("/register", h.Register)
	site.POST("/login", h.Login)
	site.GET("/chat/:token", auth.RequireUser(cfg.LoginURL), h.ChatPage)
	site.GET("/api/online", auth.RequireUser(cfg.LoginURL), h.Online)

	site.GET("/wschat/:name/*token", ws.Handler(d.Gateway))
	return r
}
