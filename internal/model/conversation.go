package model

import "time"

// ConversationTurn 代表一次问答交互，只保存在会话内存中，会话结束时归档。
type ConversationTurn struct {
	Timestamp time.Time `json:"timestamp"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Model     string    `json:"model,omitempty"`
}

// ConversationArchive 是写入对象存储的历史归档文件内容。
type ConversationArchive struct {
	UserID    string             `json:"userId"`
	StartedAt time.Time          `json:"startedAt"`
	EndedAt   time.Time          `json:"endedAt"`
	Turns     []ConversationTurn `json:"turns"`
}
