package middleware

import (
	"strings"

	"elearning_backend/internal/config"
	"elearning_backend/internal/model"
	"elearning_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware 校验访问令牌。只接受 kind=access 的令牌，
// 刷新/验证/重置令牌走到这里一律 401。
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}

		if tokenString == "" {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		claims, err := util.ParseToken(tokenString, cfg.JWT.Secret, util.TokenAccess, cfg.JWT.Leeway)
		if err != nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		c.Set("user", claims)
		c.Next()
	}
}

// RequireCapability 基于能力点授权，角色到能力的映射见 model.Capability
func RequireCapability(cap model.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := util.GetUserFromContext(c)
		if claims == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		if !model.UserRole(claims.Role).Can(cap) {
			util.Forbidden(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RoleMiddleware 角色白名单，管理员直接放行
func RoleMiddleware(roles ...model.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := util.GetUserFromContext(c)
		if claims == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		hasRole := false
		for _, role := range roles {
			if model.UserRole(claims.Role) == model.Admin || model.UserRole(claims.Role) == role {
				hasRole = true
				break
			}
		}

		if !hasRole {
			util.Forbidden(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

type UserActivityRepo interface {
	UpdateLastSeen(userID uint) error
}

func ActivityMiddleware(repo UserActivityRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := util.GetUserFromContext(c)
		if claims != nil {
			// 异步更新，不阻塞主流程
			go repo.UpdateLastSeen(claims.UserID)
		}
		c.Next()
	}
}
