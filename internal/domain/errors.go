package domain

import "errors"

// 错误分级：
//   - ErrConfiguration：注册/加载时的致命配置错误，不会部分生效
//   - ErrTransient：网络类瞬时错误（超时、5xx、限流），带退避重试
//   - ErrPermanent：交易所明确拒绝（余额不足、订单非法），记录后不再重试
//   - ErrDuplicateTrade：内部去重命中，静默跳过，对运维不可见为错误
var (
	ErrConfiguration  = errors.New("configuration error")
	ErrTransient      = errors.New("transient network error")
	ErrPermanent      = errors.New("permanent order error")
	ErrDuplicateTrade = errors.New("duplicate trade")
)

// IsTransient 判断错误是否可重试
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsPermanent 判断错误是否为不可重试的交易所拒绝
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// IsDuplicate 判断错误是否为去重命中（不算失败，静默跳过）
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateTrade)
}
