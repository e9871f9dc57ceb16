package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"vault-core/internal/handler/response"
	"vault-core/internal/model"
	"vault-core/pkg/errno"
)

const (
	principalHeader = "X-Principal-Id"
	expiresHeader   = "X-Principal-Expires"
	principalKey    = "principal"
)

// PrincipalAuth 从网关注入的请求头解析调用方身份
// X-Principal-Id 必填; X-Principal-Expires (unix 秒) 存在时必须未过期
func PrincipalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := c.GetHeader(principalHeader)
		if principal == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Response{
				Code:    errno.ErrTokenInvalid.Code,
				Message: "missing principal header",
				Data:    gin.H{},
			})
			return
		}

		if expires := c.GetHeader(expiresHeader); expires != "" {
			sec, err := strconv.ParseInt(expires, 10, 64)
			if err != nil || time.Now().Unix() >= sec {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Response{
					Code:    errno.ErrTokenInvalid.Code,
					Message: "principal expired",
					Data:    gin.H{},
				})
				return
			}
		}

		c.Set(principalKey, model.Owner(principal))
		c.Next()
	}
}

// Principal 取出中间件解析的调用方身份
func Principal(c *gin.Context) model.Owner {
	if v, ok := c.Get(principalKey); ok {
		if owner, ok := v.(model.Owner); ok {
			return owner
		}
	}
	return ""
}
