package service

import (
	"context"
	"errors"
	"time"

	"elearning_backend/internal/config"
	"elearning_backend/internal/model"
	"elearning_backend/internal/repository"
	"elearning_backend/internal/util"
	"elearning_backend/pkg/email"
	"elearning_backend/pkg/logger"
	"elearning_backend/pkg/monitoring"
	"elearning_backend/pkg/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	guardScopeLogin = "login"
	guardScopeReset = "reset"
)

// AttemptLimiter 认证尝试限额策略，调用慢哈希前先行咨询
type AttemptLimiter interface {
	Allow(ctx context.Context, scope, subject string) bool
	Reset(ctx context.Context, scope, subject string)
}

type AuthService struct {
	UserRepo    *repository.UserRepository
	SessionRepo *repository.SessionRepository
	Limiter     AttemptLimiter
	Mailer      email.Sender
	Cfg         *config.Config
}

func NewAuthService(userRepo *repository.UserRepository, sessionRepo *repository.SessionRepository, limiter AttemptLimiter, mailer email.Sender, cfg *config.Config) *AuthService {
	return &AuthService{
		UserRepo:    userRepo,
		SessionRepo: sessionRepo,
		Limiter:     limiter,
		Mailer:      mailer,
		Cfg:         cfg,
	}
}

// TokenPair 一次签发的访问令牌与刷新令牌
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

func (s *AuthService) Register(ctx context.Context, user *model.User) error {
	_, err := s.UserRepo.FindByEmail(ctx, user.Email)
	if err == nil {
		return util.ErrEmailRegistered
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hashed, err := security.HashPassword(user.Password, s.Cfg.Security.BcryptCost)
	if err != nil {
		return err
	}
	user.Password = hashed

	if err := s.UserRepo.Create(ctx, user); err != nil {
		return err
	}

	s.dispatchVerificationEmail(user)
	return nil
}

// Login 校验凭据并签发令牌对。邮箱不存在与密码错误返回同一错误，
// 防止用户枚举；限额检查先于 bcrypt。
func (s *AuthService) Login(ctx context.Context, emailAddr, password string) (*TokenPair, error) {
	if !s.Limiter.Allow(ctx, guardScopeLogin, emailAddr) {
		monitoring.LoginFailures.WithLabelValues("rate_limited").Inc()
		return nil, util.ErrTooManyAttempts
	}

	user, err := s.UserRepo.FindByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			monitoring.LoginFailures.WithLabelValues("bad_credentials").Inc()
			return nil, util.ErrInvalidCredentials
		}
		return nil, err
	}

	if !security.CheckPassword(password, user.Password) {
		monitoring.LoginFailures.WithLabelValues("bad_credentials").Inc()
		return nil, util.ErrInvalidCredentials
	}

	if !user.IsVerified {
		monitoring.LoginFailures.WithLabelValues("not_verified").Inc()
		return nil, util.ErrAccountNotVerified
	}
	if !user.IsActive {
		monitoring.LoginFailures.WithLabelValues("disabled").Inc()
		return nil, util.ErrAccountDisabled
	}

	session, err := s.SessionRepo.Create(ctx, user.ID, s.Cfg.JWT.RefreshTTL)
	if err != nil {
		return nil, err
	}

	s.Limiter.Reset(ctx, guardScopeLogin, emailAddr)
	if err := s.UserRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		logger.Log.Warn("failed to update last login", zap.Uint("userId", user.ID), zap.Error(err))
	}

	return s.issuePair(user, session.ID)
}

// Refresh 轮换刷新令牌。已轮换令牌被重放视为疑似令牌失窃：
// 撤销整条会话链并上报指标，对外只返回通用的令牌无效错误。
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := util.ParseToken(refreshToken, s.Cfg.JWT.Secret, util.TokenRefresh, s.Cfg.JWT.Leeway)
	if err != nil {
		return nil, util.ErrInvalidToken
	}

	successor, err := s.SessionRepo.Rotate(ctx, claims.SessionID, s.Cfg.JWT.RefreshTTL)
	if err != nil {
		if errors.Is(err, util.ErrSessionRevoked) {
			s.handleReuse(ctx, claims)
			return nil, util.ErrInvalidToken
		}
		if errors.Is(err, util.ErrSessionNotFound) {
			return nil, util.ErrInvalidToken
		}
		return nil, err
	}

	user, err := s.UserRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, util.ErrInvalidToken
	}
	if !user.IsActive {
		return nil, util.ErrAccountDisabled
	}

	return s.issuePair(user, successor.ID)
}

// handleReuse 重放检测的安全响应：撤销该会话所属的整条轮换链
func (s *AuthService) handleReuse(ctx context.Context, claims *util.Claims) {
	monitoring.TokenReuseDetected.Inc()
	logger.Log.Warn("refresh token reuse detected, revoking session family",
		zap.Uint("userId", claims.UserID),
		zap.String("sessionId", claims.SessionID),
	)

	session, err := s.SessionRepo.FindByID(ctx, claims.SessionID)
	if err != nil {
		return
	}
	if err := s.SessionRepo.RevokeFamily(ctx, session.FamilyID); err != nil {
		logger.Log.Error("failed to revoke session family",
			zap.String("familyId", session.FamilyID), zap.Error(err))
	}
}

// Logout 尽力而为：已过期但签名合法的令牌仍撤销对应会话，
// 解析失败不报错
func (s *AuthService) Logout(ctx context.Context, refreshToken string) {
	claims, err := util.ParseTokenAllowExpired(refreshToken, s.Cfg.JWT.Secret, util.TokenRefresh)
	if err != nil || claims.SessionID == "" {
		return
	}
	if err := s.SessionRepo.Revoke(ctx, claims.SessionID); err != nil {
		logger.Log.Warn("failed to revoke session on logout",
			zap.String("sessionId", claims.SessionID), zap.Error(err))
	}
}

// RequestPasswordReset 无论邮箱是否存在都返回成功，防止枚举。
// 邮件发送失败不影响令牌有效性。
func (s *AuthService) RequestPasswordReset(ctx context.Context, emailAddr string) {
	if !s.Limiter.Allow(ctx, guardScopeReset, emailAddr) {
		return
	}

	user, err := s.UserRepo.FindByEmail(ctx, emailAddr)
	if err != nil {
		return
	}

	token, err := util.GenerateToken(user, util.TokenPasswordReset, "", s.Cfg.JWT.Secret, s.Cfg.JWT.PasswordResetTTL)
	if err != nil {
		logger.Log.Error("failed to issue password reset token", zap.Error(err))
		return
	}

	go func() {
		if err := s.Mailer.SendPasswordResetEmail(user.Email, user.Name, token); err != nil {
			logger.Log.Warn("failed to send password reset email", zap.Error(err))
		}
	}()
}

// ResetPassword 重置密码并撤销该用户全部会话。
// 早于上次改密时间签发的令牌一律拒绝，保证重置令牌单次使用。
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	claims, err := util.ParseToken(token, s.Cfg.JWT.Secret, util.TokenPasswordReset, s.Cfg.JWT.Leeway)
	if err != nil {
		return util.ErrInvalidToken
	}

	user, err := s.UserRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		return util.ErrInvalidToken
	}

	if user.PasswordChangedAt != nil && !claims.IssuedAt.Time.After(*user.PasswordChangedAt) {
		return util.ErrInvalidToken
	}

	hashed, err := security.HashPassword(newPassword, s.Cfg.Security.BcryptCost)
	if err != nil {
		return err
	}

	if err := s.UserRepo.UpdatePassword(ctx, user.ID, hashed, time.Now()); err != nil {
		return err
	}

	// 强制所有设备重新登录
	return s.SessionRepo.RevokeAllByUser(ctx, user.ID)
}

// ChangePassword 已登录用户修改密码，同样撤销全部会话
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, current, newPassword string) error {
	user, err := s.UserRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	if !security.CheckPassword(current, user.Password) {
		return util.ErrInvalidCredentials
	}

	hashed, err := security.HashPassword(newPassword, s.Cfg.Security.BcryptCost)
	if err != nil {
		return err
	}

	if err := s.UserRepo.UpdatePassword(ctx, user.ID, hashed, time.Now()); err != nil {
		return err
	}

	return s.SessionRepo.RevokeAllByUser(ctx, user.ID)
}

// VerifyEmail 幂等：重复验证不报错
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	claims, err := util.ParseToken(token, s.Cfg.JWT.Secret, util.TokenEmailVerify, s.Cfg.JWT.Leeway)
	if err != nil {
		return util.ErrInvalidToken
	}

	return s.UserRepo.MarkVerified(ctx, claims.UserID)
}

// ResendVerification 与重置请求同样防枚举：总是返回成功
func (s *AuthService) ResendVerification(ctx context.Context, emailAddr string) {
	user, err := s.UserRepo.FindByEmail(ctx, emailAddr)
	if err != nil || user.IsVerified {
		return
	}
	s.dispatchVerificationEmail(user)
}

func (s *AuthService) dispatchVerificationEmail(user *model.User) {
	token, err := util.GenerateToken(user, util.TokenEmailVerify, "", s.Cfg.JWT.Secret, s.Cfg.JWT.VerifyEmailTTL)
	if err != nil {
		logger.Log.Error("failed to issue verification token", zap.Error(err))
		return
	}

	go func() {
		if err := s.Mailer.SendVerificationEmail(user.Email, user.Name, token); err != nil {
			logger.Log.Warn("failed to send verification email", zap.Error(err))
		}
	}()
}

func (s *AuthService) issuePair(user *model.User, sessionID string) (*TokenPair, error) {
	access, err := util.GenerateToken(user, util.TokenAccess, "", s.Cfg.JWT.Secret, s.Cfg.JWT.AccessTTL)
	if err != nil {
		return nil, err
	}

	refresh, err := util.GenerateToken(user, util.TokenRefresh, sessionID, s.Cfg.JWT.Secret, s.Cfg.JWT.RefreshTTL)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.Cfg.JWT.AccessTTL.Seconds()),
	}, nil
}

func (s *AuthService) GetCurrentUser(c *gin.Context) *model.User {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		return nil
	}

	user, _ := s.UserRepo.FindByID(c.Request.Context(), claims.UserID)
	return user
}
