package assistant

import "errors"

const (
	invalidUserMessage = "无效的用户消息"
	networkTimeout     = "网络连接超时，请稍后重试"
)

// ErrCanceled is returned when the caller's context ends a stream early.
var ErrCanceled = errors.New("assistant stream canceled")

// ErrUnavailable is the user-facing failure of the one-shot chat helpers.
var ErrUnavailable = errors.New("抱歉，AI服务暂时无法处理您的请求。请稍后再试。")

// InvalidInputError reports a malformed call: no history, or a last
// message that was not written by the user.
type InvalidInputError struct{ Message string }

func (e *InvalidInputError) Error() string { return e.Message }

// TransientNetworkError is the simulated backend failure raised before any
// content is emitted.
type TransientNetworkError struct{ Message string }

func (e *TransientNetworkError) Error() string { return e.Message }
