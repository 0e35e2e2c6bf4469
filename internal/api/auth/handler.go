package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/pkg/config"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/pkg/jwt"
	"go.uber.org/zap"
)

var loginLimit = NewLoginRateLimit(time.Minute, 10)

// LoginRequest is the admin credential payload.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login checks the configured admin credentials and issues a bearer token.
func Login(c *gin.Context) {
	if !loginLimit.Check(c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"detail": "Too many login attempts"})
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	cfg := config.Get()
	hash := sha256.Sum256([]byte(req.Password))
	hashHex := hex.EncodeToString(hash[:])

	userOK := req.Username == cfg.Admin.Username
	passOK := subtle.ConstantTimeCompare([]byte(hashHex), []byte(cfg.Admin.PasswordHash)) == 1
	if !userOK || !passOK {
		zap.L().Warn("login rejected", zap.String("username", req.Username), zap.String("ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid credentials"})
		return
	}

	token, err := jwt.GenerateToken(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":    token,
		"username": req.Username,
	})
}

// AuthMiddleware validates the bearer token on protected routes.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := jwt.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": err.Error()})
			return
		}

		claims, err := jwt.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": err.Error()})
			return
		}

		c.Set("username", claims.Username)
		c.Next()
	}
}
