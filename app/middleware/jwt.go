package middleware

import (
	"net/http"
	"strings"
	"time"

	"streamvault/app/auth"
	"streamvault/app/config"
	"streamvault/app/model"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// PrincipalKey 上下文中已认证主体的键名
const PrincipalKey = "principal"

// JWTAuth JWT认证中间件
func JWTAuth(cfg *config.Config) gin.HandlerFunc {
	jwtService := auth.NewJWTService(cfg)

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "Authorization header is required",
			})
			c.Abort()
			return
		}

		// 检查Bearer前缀
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "Authorization header format must be Bearer {token}",
			})
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "Invalid token: " + err.Error(),
			})
			c.Abort()
			return
		}

		setPrincipal(c, claims)
		c.Next()
	}
}

// StreamAuth 流媒体认证中间件，除 Authorization 头外还支持 token 查询参数
// 视频播放器（<video> 标签、EventSource）无法携带自定义请求头，只能通过 URL 传递令牌。
// 验证结果缓存一段时间，避免播放器的每个分段请求都重新解析令牌。
// streamClaimsTTL 流媒体令牌验证结果的缓存时间
const streamClaimsTTL = time.Minute

func StreamAuth(cfg *config.Config) gin.HandlerFunc {
	jwtService := auth.NewJWTService(cfg)
	claimsCache := cache.New(streamClaimsTTL, 5*time.Minute)

	return func(c *gin.Context) {
		var token string

		// 优先从 Authorization 头获取令牌
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" {
				token = parts[1]
			}
		}

		// 其次从查询参数获取（用于直接的视频链接）
		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "Authentication token missing",
			})
			c.Abort()
			return
		}

		// 命中缓存则跳过验证
		if cached, ok := claimsCache.Get(token); ok {
			setPrincipal(c, cached.(*auth.Claims))
			c.Next()
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		// 缓存时间不超过令牌的剩余有效期，过期令牌不会经缓存继续放行
		ttl := streamClaimsTTL
		if exp := claims.ExpiresAt; exp != nil {
			if remaining := time.Until(exp.Time); remaining < ttl {
				ttl = remaining
			}
		}
		claimsCache.Set(token, claims, ttl)
		setPrincipal(c, claims)
		c.Next()
	}
}

// RequireRoles 角色检查中间件，必须在认证中间件之后使用
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := GetPrincipal(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "Not authenticated",
			})
			c.Abort()
			return
		}

		for _, role := range roles {
			if principal.Role == role {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, gin.H{
			"code":    403,
			"message": "Forbidden: insufficient role",
		})
		c.Abort()
	}
}

// setPrincipal 将认证主体存入上下文
func setPrincipal(c *gin.Context, claims *auth.Claims) {
	c.Set(PrincipalKey, model.Principal{
		UserID:   claims.UserID,
		TenantID: claims.TenantID,
		Role:     claims.Role,
	})
}

// GetPrincipal 从上下文中取出认证主体
func GetPrincipal(c *gin.Context) (model.Principal, bool) {
	value, exists := c.Get(PrincipalKey)
	if !exists {
		return model.Principal{}, false
	}
	principal, ok := value.(model.Principal)
	return principal, ok
}
