// Package respond writes the JSON envelope shared by every API route.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/blogem/devkb/models"
)

// Client-facing messages. Detail of internal failures never leaves the server.
const (
	MsgMissingCredential = "缺少认证令牌"
	MsgInvalidCredential = "无效的认证令牌"
	MsgForbidden         = "权限不足"
	MsgRateLimited       = "请求过于频繁"
	MsgInternal          = "服务器内部错误"
	MsgValidationFailed  = "请求参数无效"
	MsgInvalidLogin      = "邮箱或密码错误"
)

// JSON writes v with the given status
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Success writes a 200 envelope carrying data
func Success(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, models.APIResponse{Success: true, Data: data})
}

// Error writes a failure envelope with a public message
func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, models.APIResponse{Success: false, Error: msg})
}

// ValidationFailed writes a 400 envelope listing field errors
func ValidationFailed(w http.ResponseWriter, errs models.ValidationErrors) {
	JSON(w, http.StatusBadRequest, models.APIResponse{
		Success: false,
		Error:   MsgValidationFailed,
		Errors:  errs,
	})
}

// Paginated writes a 200 envelope with data and its page metadata
func Paginated(w http.ResponseWriter, data interface{}, pagination models.Pagination) {
	JSON(w, http.StatusOK, models.APIResponse{
		Success:    true,
		Data:       data,
		Pagination: &pagination,
	})
}
