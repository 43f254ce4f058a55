package model

import "time"

// QAExchange is one answered question, kept for the history endpoint.
type QAExchange struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SessionKey string    `gorm:"size:128;not null;index" json:"session_key"`
	Question   string    `gorm:"type:text;not null" json:"question"`
	Answer     string    `gorm:"type:text;not null" json:"answer"`
	Model      string    `gorm:"size:255" json:"model"`
	TextLength int       `gorm:"not null" json:"text_length"`
	CreatedAt  time.Time `json:"created_at"`
}

func (QAExchange) TableName() string {
	return "qa_exchanges"
}
