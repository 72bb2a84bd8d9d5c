package ws

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"chatrelay/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	readLimit  = 1 << 20 // 1MB
	pongWait   = 60 * time.Second
	writeWait  = 10 * time.Second
	closeGrace = time.Second
)

var pathParam = regexp.MustCompile(`^[0-9a-z]+$`)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsSocket 把 gorilla 连接适配成 Socket。
type wsSocket struct {
	conn *websocket.Conn
}

func newWSSocket(conn *websocket.Conn) *wsSocket {
	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &wsSocket{conn: conn}
}

func (s *wsSocket) ReadText() (string, error) {
	for {
		typ, data, err := s.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		if typ == websocket.TextMessage {
			return string(data), nil
		}
	}
}

func (s *wsSocket) WriteText(msg string) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (s *wsSocket) Ping() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (s *wsSocket) Close(reason string) error {
	code := websocket.CloseNormalClosure
	switch reason {
	case "":
	case reasonShutdown:
		code = websocket.CloseGoingAway
	default:
		code = websocket.ClosePolicyViolation
	}
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(closeGrace))
	return s.conn.Close()
}

// Handler 处理 /wschat/:name/*token。name 与 token 只允许小写字母和数字；
// token 为空时仍完成握手，随后以 "invalid token" 关闭。
// 若前置的 auth.CurrentUser 解析出身份，连接会记录其登录名。
func Handler(g *Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		token := strings.TrimPrefix(c.Param("token"), "/")
		if !pathParam.MatchString(name) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid name"})
			return
		}
		if token != "" && !pathParam.MatchString(token) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Str("name", name).Msg("ws upgrade")
			return
		}
		p := Peer{Name: name, Token: token}
		if u := auth.GetUser(c); u != nil {
			p.Login = u.Login
		}
		if err := g.Serve(c.Request.Context(), newWSSocket(conn), p); err != nil {
			log.Warn().Err(err).Str("name", name).Msg("ws rejected")
		}
	}
}
