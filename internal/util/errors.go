package util

import "errors"

var (
	ErrUserNotFound      = errors.New("用户不存在")
	ErrEmailRegistered   = errors.New("该邮箱已被注册")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrQuestionNotFound  = errors.New("question not found")
	ErrSessionNotFound   = errors.New("no active session")
	ErrEmptyAnswer       = errors.New("answer is empty")
	ErrSubmissionPending = errors.New("a submission is already in flight")
	ErrNotInFeedback     = errors.New("session is not in feedback state")
	ErrSessionFinished   = errors.New("session already finished")
	ErrQueryForbidden    = errors.New("write/procedure queries are not allowed")
	ErrExecutionFailed   = errors.New("query execution failed")
	ErrGraphUnavailable  = errors.New("graph backend unavailable")
)
