package embedding

import (
	"errors"
	"fmt"
)

// ValidationError は書き込み時の検証エラーを表します
// 該当する1件の書き込みのみ失敗させ、部分的な行は一切永続化しない
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// IsValidationError は err が検証エラーかどうかを判定します
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
