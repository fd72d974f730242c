package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"elearning_backend/internal/config"
	"elearning_backend/internal/model"
	"elearning_backend/internal/repository"
	"elearning_backend/internal/util"
	"elearning_backend/pkg/logger"
	"elearning_backend/pkg/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	logger.Log = zap.NewNop()
}

// fakeLimiter 可编程的限额策略
type fakeLimiter struct {
	mu      sync.Mutex
	blocked bool
	resets  int
}

func (f *fakeLimiter) Allow(ctx context.Context, scope, subject string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.blocked
}

func (f *fakeLimiter) Reset(ctx context.Context, scope, subject string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

func (f *fakeLimiter) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

// fakeMailer 记录外发邮件供断言
type fakeMailer struct {
	mu     sync.Mutex
	verify []string
	reset  []string
}

func (f *fakeMailer) SendVerificationEmail(to, name, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verify = append(f.verify, token)
	return nil
}

func (f *fakeMailer) SendPasswordResetEmail(to, name, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset = append(f.reset, token)
	return nil
}

func (f *fakeMailer) verifyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.verify)
}

func (f *fakeMailer) lastResetToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reset) == 0 {
		return ""
	}
	return f.reset[len(f.reset)-1]
}

type authTestEnv struct {
	svc     *AuthService
	users   *repository.UserRepository
	session *repository.SessionRepository
	limiter *fakeLimiter
	mailer  *fakeMailer
	cfg     *config.Config
}

func newAuthTestEnv(t *testing.T) *authTestEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.RefreshSession{}))

	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret-0123456789abcdef0123456789"
	cfg.JWT.AccessTTL = 15 * time.Minute
	cfg.JWT.RefreshTTL = 24 * time.Hour
	cfg.JWT.VerifyEmailTTL = 24 * time.Hour
	cfg.JWT.PasswordResetTTL = 30 * time.Minute
	cfg.Security.BcryptCost = bcrypt.MinCost

	env := &authTestEnv{
		users:   repository.NewUserRepository(db),
		session: repository.NewSessionRepository(db),
		limiter: &fakeLimiter{},
		mailer:  &fakeMailer{},
		cfg:     cfg,
	}
	env.svc = NewAuthService(env.users, env.session, env.limiter, env.mailer, cfg)
	return env
}

func (env *authTestEnv) createUser(t *testing.T, email string, verified bool) *model.User {
	t.Helper()

	hashed, err := security.HashPassword("password-1", bcrypt.MinCost)
	require.NoError(t, err)

	user := &model.User{
		Name:       "Test User",
		Email:      email,
		Password:   hashed,
		Role:       model.Student,
		IsVerified: verified,
		IsActive:   true,
	}
	require.NoError(t, env.users.Create(context.Background(), user))
	return user
}

func TestRegisterAndVerify(t *testing.T) {
	env := newAuthTestEnv(t)
	ctx := context.Background()

	user := &model.User{
		Name:     "Alice",
		Email:    "alice@example.com",
		Password: "password-1",
		Role:     model.Student,
	}
	require.NoError(t, env.svc.Register(ctx, user))

	// 密码已哈希存储
	stored, err := env.users.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "password-1", stored.Password)
	assert.False(t, stored.IsVerified)

	// 验证邮件异步送达
	assert.Eventually(t, func() bool {
		return env.mailer.verifyCount() == 1
	}, time.Second, 10*time.Millisecond)

	// 重复注册同一邮箱
	dup := &model.User{Name: "Alice2", Email: "alice@example.com", Password: "password-2"}
	assert.ErrorIs(t, env.svc.Register(ctx, dup), util.ErrEmailRegistered)

	// 用邮件里的令牌完成验证
	env.mailer.mu.Lock()
	token := env.mailer.verify[0]
	env.mailer.mu.Unlock()
	require.NoError(t, env.svc.VerifyEmail(ctx, token))

	stored, err = env.users.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, stored.IsVerified)

	// 重复验证幂等
	assert.NoError(t, env.svc.VerifyEmail(ctx, token))
}

func TestVerifyEmailRejectsOtherKinds(t *testing.T) {
	env := newAuthTestEnv(t)
	user := env.createUser(t, "bob@example.com", false)

	// 重置令牌不能用来验证邮箱
	resetToken, err := util.GenerateToken(user, util.TokenPasswordReset, "", env.cfg.JWT.Secret, time.Minute)
	require.NoError(t, err)
	assert.ErrorIs(t, env.svc.VerifyEmail(context.Background(), resetToken), util.ErrInvalidToken)
}

func TestLogin(t *testing.T) {
	env := newAuthTestEnv(t)
	env.createUser(t, "carol@example.com", true)
	ctx := context.Background()

	pair, err := env.svc.Login(ctx, "carol@example.com", "password-1")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int64((15 * time.Minute).Seconds()), pair.ExpiresIn)
	assert.Equal(t, 1, env.limiter.resetCount())

	// 访问令牌是 access 类型，刷新令牌携带会话
	access, err := util.ParseToken(pair.AccessToken, env.cfg.JWT.Secret, util.TokenAccess, 0)
	require.NoError(t, err)
	assert.Empty(t, access.SessionID)

	refresh, err := util.ParseToken(pair.RefreshToken, env.cfg.JWT.Secret, util.TokenRefresh, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, refresh.SessionID)
}

func TestLoginFailures(t *testing.T) {
	env := newAuthTestEnv(t)
	env.createUser(t, "dave@example.com", true)
	disabled := env.createUser(t, "eve@example.com", true)
	disabled.IsActive = false
	require.NoError(t, env.users.Update(context.Background(), disabled))
	env.createUser(t, "frank@example.com", false)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"wrong password", "dave@example.com", "wrong", util.ErrInvalidCredentials},
		{"unknown email", "ghost@example.com", "password-1", util.ErrInvalidCredentials},
		{"disabled account", "eve@example.com", "password-1", util.ErrAccountDisabled},
		{"unverified account", "frank@example.com", "password-1", util.ErrAccountNotVerified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Login(ctx, tt.email, tt.password)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoginRateLimited(t *testing.T) {
	env := newAuthTestEnv(t)
	env.createUser(t, "gina@example.com", true)
	env.limiter.blocked = true

	// 正确的密码也被限额拦截
	_, err := env.svc.Login(context.Background(), "gina@example.com", "password-1")
	assert.ErrorIs(t, err, util.ErrTooManyAttempts)
}

func TestRefreshRotation(t *testing.T) {
	env := newAuthTestEnv(t)
	env.createUser(t, "henry@example.com", true)
	ctx := context.Background()

	pair, err := env.svc.Login(ctx, "henry@example.com", "password-1")
	require.NoError(t, err)

	next, err := env.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// 新令牌可以继续刷新
	third, err := env.svc.Refresh(ctx, next.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, third.RefreshToken)
}

func TestRefreshReuseRevokesFamily(t *testing.T) {
	env := newAuthTestEnv(t)
	env.createUser(t, "iris@example.com", true)
	ctx := context.Background()

	pair, err := env.svc.Login(ctx, "iris@example.com", "password-1")
	require.NoError(t, err)

	next, err := env.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	// 旧令牌重放：对外只报令牌无效
	_, err = env.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, util.ErrInvalidToken)

	// 整条链被撤销，最新的令牌也不能再用
	_, err = env.svc.Refresh(ctx, next.RefreshToken)
	assert.ErrorIs(t, err, util.ErrInvalidToken)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	env := newAuthTestEnv(t)
	env.createUser(t, "judy@example.com", true)
	ctx := context.Background()

	pair, err := env.svc.Login(ctx, "judy@example.com", "password-1")
	require.NoError(t, err)

	_, err = env.svc.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, util.ErrInvalidToken)
}

func TestRefreshDisabledUser(t *testing.T) {
	env := newAuthTestEnv(t)
	user := env.createUser(t, "kate@example.com", true)
	ctx := context.Background()

	pair, err := env.svc.Login(ctx, "kate@example.com", "password-1")
	require.NoError(t, err)

	user.IsActive = false
	require.NoError(t, env.users.Update(ctx, user))

	_, err = env.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, util.ErrAccountDisabled)
}

func TestLogout(t *testing.T) {
	env := newAuthTestEnv(t)
	env.createUser(t, "liam@example.com", true)
	ctx := context.Background()

	pair, err := env.svc.Login(ctx, "liam@example.com", "password-1")
	require.NoError(t, err)

	env.svc.Logout(ctx, pair.RefreshToken)

	// 登出后的令牌不能再刷新
	_, err = env.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, util.ErrInvalidToken)

	// 垃圾令牌登出静默成功
	env.svc.Logout(ctx, "garbage")
}

func TestPasswordResetFlow(t *testing.T) {
	env := newAuthTestEnv(t)
	env.createUser(t, "mia@example.com", true)
	ctx := context.Background()

	// 登录拿到一个会话，重置后它应当被撤销
	pair, err := env.svc.Login(ctx, "mia@example.com", "password-1")
	require.NoError(t, err)

	env.svc.RequestPasswordReset(ctx, "mia@example.com")
	require.Eventually(t, func() bool {
		return env.mailer.lastResetToken() != ""
	}, time.Second, 10*time.Millisecond)

	token := env.mailer.lastResetToken()
	require.NoError(t, env.svc.ResetPassword(ctx, token, "new-password-1"))

	// 新密码生效，旧密码失效
	_, err = env.svc.Login(ctx, "mia@example.com", "password-1")
	assert.ErrorIs(t, err, util.ErrInvalidCredentials)
	_, err = env.svc.Login(ctx, "mia@example.com", "new-password-1")
	assert.NoError(t, err)

	// 重置前的刷新会话已被撤销
	_, err = env.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, util.ErrInvalidToken)

	// 令牌单次使用：同一令牌二次重置被拒
	err = env.svc.ResetPassword(ctx, token, "another-password")
	assert.ErrorIs(t, err, util.ErrInvalidToken)
}

func TestPasswordResetUnknownEmailSilent(t *testing.T) {
	env := newAuthTestEnv(t)

	// 不存在的邮箱不报错也不发信
	env.svc.RequestPasswordReset(context.Background(), "nobody@example.com")
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, env.mailer.lastResetToken())
}

func TestChangePassword(t *testing.T) {
	env := newAuthTestEnv(t)
	user := env.createUser(t, "noah@example.com", true)
	ctx := context.Background()

	pair, err := env.svc.Login(ctx, "noah@example.com", "password-1")
	require.NoError(t, err)

	// 当前密码错误
	err = env.svc.ChangePassword(ctx, user.ID, "wrong", "new-password-1")
	assert.ErrorIs(t, err, util.ErrInvalidCredentials)

	require.NoError(t, env.svc.ChangePassword(ctx, user.ID, "password-1", "new-password-1"))

	// 全部会话被撤销
	_, err = env.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, util.ErrInvalidToken)

	_, err = env.svc.Login(ctx, "noah@example.com", "new-password-1")
	assert.NoError(t, err)
}

func TestResendVerification(t *testing.T) {
	env := newAuthTestEnv(t)
	env.createUser(t, "olga@example.com", false)
	env.createUser(t, "paul@example.com", true)
	ctx := context.Background()

	env.svc.ResendVerification(ctx, "olga@example.com")
	assert.Eventually(t, func() bool {
		return env.mailer.verifyCount() == 1
	}, time.Second, 10*time.Millisecond)

	// 已验证用户与未知邮箱都静默
	env.svc.ResendVerification(ctx, "paul@example.com")
	env.svc.ResendVerification(ctx, "ghost@example.com")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, env.mailer.verifyCount())
}
