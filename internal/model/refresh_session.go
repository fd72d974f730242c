package model

import "time"

// RefreshSession 刷新会话账本记录。
// 每次登录创建一条，每次刷新轮换一次：旧记录被撤销并通过
// ReplacedBy 指向继任者。FamilyID 固定为本链首条会话的 ID，
// 检测到已轮换令牌被重放时整条链一起撤销。
// swagger:model RefreshSession
type RefreshSession struct {
	UUIDBase

	UserID   uint   `gorm:"index;type:bigint unsigned;not null" json:"userId"`
	FamilyID string `gorm:"index;type:varchar(36);not null" json:"familyId"`

	IssuedAt  time.Time  `json:"issuedAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	RevokedAt *time.Time `gorm:"index" json:"revokedAt,omitempty"`

	ReplacedBy *string `gorm:"type:varchar(36)" json:"replacedBy,omitempty"`
}

func (RefreshSession) TableName() string {
	return "refresh_sessions"
}

// Active 会话未撤销且未到期
func (s *RefreshSession) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
