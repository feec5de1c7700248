package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Recovery はパニックからの回復を行うGinミドルウェアを返す。
// パニック発生時にログを出力し、500エラーを返す。
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(log.Fields{
					"method": c.Request.Method,
					"path":   c.Request.URL.Path,
					"panic":  r,
				}).Error("[PANIC] ハンドラでパニックが発生しました")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "内部サーバーエラーが発生しました",
				})
			}
		}()
		c.Next()
	}
}
