package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/rs/zerolog/log"

	"github.com/digitalservices/queue-service/internal/auth"
)

// InvalidTokenMessage is returned with 400 when the caller token is rejected
const InvalidTokenMessage = "Invalid token"

// tokenBody is the part of a callback body that carries the caller token
type tokenBody struct {
	Token string `json:"Token"`
}

// TokenAuthMiddleware validates the Token field of a JSON body against the
// token store. The body is cached so handlers bind it again with
// c.ShouldBindBodyWith.
func TokenAuthMiddleware(validator auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body tokenBody
		if err := c.ShouldBindBodyWith(&body, binding.JSON); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}

		ok, err := validator.IsValid(c.Request.Context(), body.Token)
		if err != nil {
			log.Error().Err(err).Str("path", c.FullPath()).Msg("Token validation failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   "Failed to validate token",
				"details": err.Error(),
			})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": InvalidTokenMessage,
			})
			return
		}
		c.Next()
	}
}
