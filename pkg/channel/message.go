package channel

import "time"

// InboundMessage 入站消息，从会话客户端收到后立即处理，不做持久化
type InboundMessage struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`   // 来源会话标识
	SenderID  string    `json:"senderId"` // 群聊中为发言人，私聊中等于 ChatID
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	FromMe    bool      `json:"fromMe"`
}

// IsGroup 报告消息是否来自群聊
func (m InboundMessage) IsGroup() bool {
	return IsGroupID(m.ChatID)
}

// SendRequest 控制器下发的发送请求
type SendRequest struct {
	ChatID  string `json:"chat_id"`
	Message string `json:"message"`
}
