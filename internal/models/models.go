package models

// User 即聊天系统中的身份记录，由 Identity Store 持有；缓存与网关只持有副本。
// PasswordHash 为 bcrypt 摘要，从不保存明文。
type User struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Login        string `gorm:"uniqueIndex;size:64;not null" json:"login"`
	PasswordHash string `gorm:"size:72;not null" json:"password_hash"`
}
