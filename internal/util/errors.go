package util

import "errors"

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrLevelNotFound    = errors.New("level not found")
	ErrLevelDraft       = errors.New("level is still a draft")
	ErrInvalidMoves     = errors.New("invalid move sequence")
	ErrInvalidSolution  = errors.New("invalid solution")
	ErrMessageNotFound  = errors.New("queue message not found")
	ErrMessageNotFailed = errors.New("queue message is not in FAILED state")
	ErrUnknownJobType   = errors.New("no handler registered for message type")
	ErrInvalidFixture   = errors.New("invalid seed fixture")

	// ErrRetryable 事务冲突、死锁、连接中断等，调用方可整体重试
	ErrRetryable = errors.New("transient failure, retry the operation")
)

// IsValidation 客户端错误，不重试
func IsValidation(err error) bool {
	return errors.Is(err, ErrLevelNotFound) ||
		errors.Is(err, ErrLevelDraft) ||
		errors.Is(err, ErrInvalidMoves) ||
		errors.Is(err, ErrInvalidSolution) ||
		errors.Is(err, ErrUserNotFound)
}
