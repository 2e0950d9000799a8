package web

import (
	"context"
	"net/http"
	"strings"

	"versus-service/services"
)

type contextKey string

const callerIDKey contextKey = "caller_id"

// withIdentity 从会话头解析调用者身份并注入请求上下文。
// 认证与会话管理由外部网关完成,这里只消费其结果:
// 缺少身份直接拒绝,不再往下走。
func (s *Server) withIdentity(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callerID := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if callerID == "" {
			writeError(w, services.Unauthorized("missing X-User-ID header"))
			return
		}
		ctx := context.WithValue(r.Context(), callerIDKey, callerID)
		next(w, r.WithContext(ctx))
	})
}

// callerID 从请求上下文取出调用者身份
func callerID(r *http.Request) string {
	id, _ := r.Context().Value(callerIDKey).(string)
	return id
}
