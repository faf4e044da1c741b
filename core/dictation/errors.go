package dictation

import "errors"

// 错误分类：前三类是调用方输入错误，原样透出；
// ErrServer 表示基础设施故障，对外统一提示，细节只进日志。
var (
	ErrNotFound   = errors.New("dictation: resource not found")
	ErrConflict   = errors.New("dictation: name already in use")
	ErrBadRequest = errors.New("dictation: invalid request")
	ErrServer     = errors.New("dictation: internal error")
)
