package ws

import "strings"

// Action 描述一条入站消息应如何发布。
type Action struct {
	Channel string
	Payload string
	// Echo 为 true 时同时把 Payload 直接回写给发送者，不经过总线。
	Echo bool
}

// PrivateChannel 返回某个显示名的私聊频道。
func PrivateChannel(broadcast, name string) string {
	return broadcast + "." + name
}

// Route 把客户端文本解析成发布动作。ok 为 false 表示不做任何处理：
// 空消息、未知的 "/" 命令、以及缺少目标的 /pm。
func Route(broadcast, name, msg string) (act Action, ok bool) {
	if msg == "" {
		return Action{}, false
	}
	if msg[0] != '/' {
		return Action{Channel: broadcast, Payload: name + ": " + msg}, true
	}
	cmd, rest, _ := strings.Cut(msg, " ")
	switch cmd {
	case "/pm":
		target, body, _ := strings.Cut(rest, ":")
		if target == "" {
			return Action{}, false
		}
		formatted := "_private_ " + name + " -> " + target + ": " + body
		return Action{Channel: PrivateChannel(broadcast, target), Payload: formatted, Echo: true}, true
	default:
		return Action{}, false
	}
}
