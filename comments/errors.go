package comments

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// pgInsufficientPrivilege 是 PostgreSQL 行级安全策略拒绝写入时的 SQLSTATE。
const pgInsufficientPrivilege = "42501"

// ErrorClass 是写路径错误的封闭分类。对外文案通过查表得到，
// 不在业务代码里比对后端的魔法错误码。
type ErrorClass string

const (
	ErrClassPermission ErrorClass = "permission_denied"
	ErrClassNotNull    ErrorClass = "not_null_violation"
	ErrClassCheck      ErrorClass = "check_violation"
	ErrClassUnknown    ErrorClass = "unknown"
)

// writeMessages 把错误分类映射为用户可见文案。文案属于配置而非逻辑。
var writeMessages = map[ErrorClass]string{
	ErrClassPermission: "评论功能暂时不可用，请稍后重试",
	ErrClassNotNull:    "评论内容不能为空",
	ErrClassCheck:      "无效的视频ID",
	ErrClassUnknown:    "评论提交失败，请稍后重试",
}

// WriteError 携带分类与底层原因，Error() 返回用户可见文案。
type WriteError struct {
	Class ErrorClass
	Cause error
}

// Error 返回映射后的用户文案。
func (e *WriteError) Error() string {
	if e == nil {
		return ""
	}
	if msg, ok := writeMessages[e.Class]; ok {
		return msg
	}
	return writeMessages[ErrClassUnknown]
}

// Unwrap 暴露底层错误以便 errors.Is/As 检查。
func (e *WriteError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// newWriteError 按分类构造写路径错误。
func newWriteError(class ErrorClass, cause error) *WriteError {
	return &WriteError{Class: class, Cause: cause}
}

// classifyWriteError 把 Gorm 翻译后的约束错误归入封闭分类。
func classifyWriteError(err error) ErrorClass {
	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return ErrClassUnknown
	case errors.As(err, &pgErr) && pgErr.Code == pgInsufficientPrivilege:
		return ErrClassPermission
	case errors.Is(err, gorm.ErrForeignKeyViolated), errors.Is(err, gorm.ErrCheckConstraintViolated):
		return ErrClassCheck
	case errors.Is(err, gorm.ErrInvalidData), errors.Is(err, gorm.ErrInvalidValue):
		return ErrClassNotNull
	default:
		return ErrClassUnknown
	}
}
