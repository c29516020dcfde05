package middleware

import (
	"fmt"
	"strings"
	"time"
	"wikits/internal/apperr"
	"wikits/internal/config"
	"wikits/internal/logger"
	"wikits/internal/models"
	"wikits/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ActorKey      = "actor"
	SessionCookie = "__session"
)

// identityClaims 托管身份服务签发的会话令牌
type identityClaims struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Metadata struct {
		Role string `json:"role"`
	} `json:"metadata"`
	jwt.RegisteredClaims
}

func (c *identityClaims) role() string {
	if c.Role != "" {
		return c.Role
	}
	return c.Metadata.Role
}

type Authenticator struct {
	cfg     *config.Config
	log     *logger.Logger
	key     interface{}
	methods []string
}

// NewAuthenticator 优先使用 RS256 公钥，其次 HS256 密钥；都未配置时所有请求视为匿名
func NewAuthenticator(cfg *config.Config, log *logger.Logger) (*Authenticator, error) {
	a := &Authenticator{cfg: cfg, log: log.With("component", "auth")}
	switch {
	case cfg.JWTPublicKey != "":
		// 环境变量里的 PEM 常以字面量 \n 分行
		pem := strings.ReplaceAll(cfg.JWTPublicKey, `\n`, "\n")
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			return nil, fmt.Errorf("parse AUTH_JWT_PUBLIC_KEY: %w", err)
		}
		a.key, a.methods = key, []string{jwt.SigningMethodRS256.Alg()}
	case cfg.JWTSecret != "":
		a.key, a.methods = []byte(cfg.JWTSecret), []string{jwt.SigningMethodHS256.Alg()}
	default:
		a.log.Warn("No identity key configured, every request is anonymous")
	}
	return a, nil
}

// Verify 校验令牌并转换为 Actor
func (a *Authenticator) Verify(raw string) (services.Actor, error) {
	if a.key == nil {
		return services.Actor{}, apperr.Unauthorized("identity verification is not configured")
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods(a.methods), jwt.WithLeeway(30 * time.Second)}
	if a.cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.JWTIssuer))
	}

	claims := &identityClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.key, nil
	}, opts...)
	if err != nil {
		e := apperr.Unauthorized("invalid session token")
		e.Err = err
		return services.Actor{}, e
	}
	if claims.Subject == "" {
		return services.Actor{}, apperr.Unauthorized("session token has no subject")
	}

	return services.Actor{
		ID:       claims.Subject,
		Email:    claims.Email,
		Username: claims.Username,
		Admin:    a.cfg.IsAdminID(claims.Subject) || claims.role() == models.RoleAdmin,
	}, nil
}

func tokenFrom(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil {
		return cookie
	}
	return ""
}

// LoadActor 解析身份令牌写入上下文；无效令牌按匿名处理
func (a *Authenticator) LoadActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := tokenFrom(c); raw != "" {
			actor, err := a.Verify(raw)
			if err == nil {
				c.Set(ActorKey, actor)
			} else {
				a.log.Debug("Ignoring session token", "path", c.Request.URL.Path, "error", err)
			}
		}
		c.Next()
	}
}

// CurrentActor 返回当前登录身份
func CurrentActor(c *gin.Context) (services.Actor, bool) {
	v, ok := c.Get(ActorKey)
	if !ok {
		return services.Actor{}, false
	}
	actor, ok := v.(services.Actor)
	return actor, ok
}

// AuthRequired ensures a verified identity is present
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentActor(c); !ok {
			AbortWithError(c, apperr.Unauthorized("sign in required"))
			return
		}
		c.Next()
	}
}

func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := CurrentActor(c)
		if !ok {
			AbortWithError(c, apperr.Unauthorized("sign in required"))
			return
		}
		if !actor.Admin {
			AbortWithError(c, apperr.Forbidden("admin access required"))
			return
		}
		c.Next()
	}
}

// SyncUser 进入管理区时同步本地用户镜像，失败不阻断请求
func SyncUser(users *services.UserService, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor, ok := CurrentActor(c); ok {
			if _, err := users.SyncUser(c.Request.Context(), actor); err != nil {
				log.Warn("Failed to sync user", "user_id", actor.ID, "error", err)
			}
		}
		c.Next()
	}
}
