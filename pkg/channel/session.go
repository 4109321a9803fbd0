// Package channel defines the core types shared by the bridge and its
// session client implementations.
package channel

import (
	"context"
	"strings"
)

// GroupSuffix 群聊会话标识后缀
const GroupSuffix = "@g.us"

// IsGroupID 报告会话标识是否指向群聊
func IsGroupID(chatID string) bool {
	return strings.HasSuffix(chatID, GroupSuffix)
}

// EventType 会话事件类型
type EventType string

const (
	EventQR            EventType = "qr"
	EventAuthenticated EventType = "authenticated"
	EventReady         EventType = "ready"
	EventMessage       EventType = "message"
	EventAuthFailure   EventType = "auth_failure"
	EventDisconnected  EventType = "disconnected"
)

// Event 会话客户端发出的生命周期或消息事件
type Event struct {
	Type    EventType
	QR      string          // EventQR
	Message *InboundMessage // EventMessage
	Reason  string          // EventAuthFailure / EventDisconnected
}

// Fatal 报告事件是否意味着会话不可恢复
func (e Event) Fatal() bool {
	return e.Type == EventAuthFailure || e.Type == EventDisconnected
}

// SessionClient 会话客户端接口
//
// 实现负责维持与聊天网络的连接，桥接器只通过事件和发送操作与之交互。
type SessionClient interface {
	// Initialize 启动会话，之后事件开始从 Events 流出
	Initialize(ctx context.Context) error

	// Events 返回事件流，会话结束时关闭
	Events() <-chan Event

	// SendMessage 向指定会话发送文本消息
	SendMessage(ctx context.Context, chatID, body string) error

	// Close 释放会话资源
	Close() error
}
