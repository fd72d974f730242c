package repository

import (
	"context"
	"errors"
	"time"

	"elearning_backend/internal/model"
	"elearning_backend/internal/util"

	"gorm.io/gorm"
)

// SessionRepository 刷新会话账本。轮换必须原子：
// 同一会话并发刷新只允许一个成功，其余按重放处理。
type SessionRepository struct {
	DB *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

// Create 登录时分配新会话，FamilyID 取自身 ID 作为轮换链根
func (r *SessionRepository) Create(ctx context.Context, userID uint, ttl time.Duration) (*model.RefreshSession, error) {
	now := time.Now()
	session := &model.RefreshSession{
		UUIDBase:  model.UUIDBase{ID: model.GenerateUUID()},
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	session.FamilyID = session.ID

	if err := r.DB.WithContext(ctx).Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (*model.RefreshSession, error) {
	var session model.RefreshSession
	err := r.DB.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

// Rotate 撤销旧会话并创建继任者，两步在同一事务内完成。
// 撤销通过条件更新实现 compare-and-swap：并发轮换同一会话时
// 只有先提交者影响行数为 1，后到者拿到 ErrSessionRevoked，
// 由上层按令牌重放处理。
func (r *SessionRepository) Rotate(ctx context.Context, id string, ttl time.Duration) (*model.RefreshSession, error) {
	var successor *model.RefreshSession

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old model.RefreshSession
		if err := tx.Where("id = ?", id).First(&old).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return util.ErrSessionNotFound
			}
			return err
		}

		now := time.Now()
		if old.RevokedAt != nil {
			return util.ErrSessionRevoked
		}
		if now.After(old.ExpiresAt) {
			return util.ErrSessionNotFound
		}

		successor = &model.RefreshSession{
			UUIDBase:  model.UUIDBase{ID: model.GenerateUUID()},
			UserID:    old.UserID,
			FamilyID:  old.FamilyID,
			IssuedAt:  now,
			ExpiresAt: now.Add(ttl),
		}

		res := tx.Model(&model.RefreshSession{}).
			Where("id = ? AND revoked_at IS NULL", id).
			Updates(map[string]interface{}{
				"revoked_at":  now,
				"replaced_by": successor.ID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return util.ErrSessionRevoked
		}

		return tx.Create(successor).Error
	})

	if err != nil {
		return nil, err
	}
	return successor, nil
}

// Revoke 幂等撤销单个会话
func (r *SessionRepository) Revoke(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Model(&model.RefreshSession{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", time.Now()).Error
}

// RevokeAllByUser 撤销用户全部会话，用于改密/重置后强制重新登录
func (r *SessionRepository) RevokeAllByUser(ctx context.Context, userID uint) error {
	return r.DB.WithContext(ctx).Model(&model.RefreshSession{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", time.Now()).Error
}

// RevokeFamily 撤销整条轮换链，重放检测的安全响应
func (r *SessionRepository) RevokeFamily(ctx context.Context, familyID string) error {
	return r.DB.WithContext(ctx).Model(&model.RefreshSession{}).
		Where("family_id = ? AND revoked_at IS NULL", familyID).
		Update("revoked_at", time.Now()).Error
}

// IsActive 只读探测会话是否仍可用。
// 刷新路径不走这里：Rotate 的条件更新本身就完成了读取加判定，
// 避免先查后改的时间窗。本方法供运维排查与会话自省类查询使用。
func (r *SessionRepository) IsActive(ctx context.Context, id string) (bool, error) {
	session, err := r.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, util.ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}
	return session.Active(time.Now()), nil
}
