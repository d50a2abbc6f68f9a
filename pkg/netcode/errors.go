package netcode

import "github.com/pkg/errors"

var (
	// ErrFrameTooOld 帧已滑出保留窗口，无法再修改或回放
	ErrFrameTooOld = errors.New("frame too old")
	// ErrFutureFrame 帧尚未预留
	ErrFutureFrame = errors.New("frame not reserved yet")
	// ErrEmptyLedger 账本尚未预留任何帧
	ErrEmptyLedger = errors.New("ledger is empty")
)

// 输入被拒绝的原因；调用方记录日志后丢弃消息，不会中断房间
var (
	ErrRejectedBadlyLate   = errors.New("action is badly late and superseded")
	ErrRejectedTooFarAhead = errors.New("action frame too far ahead")
	ErrRejectedNoFreeFrame = errors.New("no free frame for action")
	ErrRejectedMalformed   = errors.New("action carries a non-finite vector")
)

// IsRejected 是否属于可恢复的输入拒绝
func IsRejected(err error) bool {
	switch errors.Cause(err) {
	case ErrRejectedBadlyLate, ErrRejectedTooFarAhead, ErrRejectedNoFreeFrame, ErrRejectedMalformed, ErrFrameTooOld, ErrFutureFrame:
		return true
	}
	return false
}

func invariant(format string, args ...any) {
	panic(errors.Errorf("netcode invariant violated: "+format, args...))
}
