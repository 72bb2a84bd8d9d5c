package auth

import (
	"net/http"

	"chatrelay/internal/models"

	"github.com/gin-gonic/gin"
)

const userKey = "user"

// CurrentUser 解析 cookie 中的会话凭证并把身份放进上下文；匿名请求照常放行。
func CurrentUser(secret string, r *Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, _ := c.Cookie(SessionCookie)
		if u := r.Resolve(c.Request.Context(), SessionKey(raw, secret)); u != nil {
			c.Set(userKey, u)
		}
		c.Next()
	}
}

// RequireUser 对匿名请求重定向到登录地址。
func RequireUser(loginURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetUser(c) == nil {
			c.Redirect(http.StatusFound, loginURL)
			c.Abort()
			return
		}
		c.Next()
	}
}

func GetUser(c *gin.Context) *models.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok2 := v.(*models.User); ok2 {
			return u
		}
	}
	return nil
}
