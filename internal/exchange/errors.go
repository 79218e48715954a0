package exchange

import (
	"errors"
	"fmt"

	"github.com/adshao/go-binance/v2/common"
)

// ErrInsufficientCandles биржа вернула меньше свечей, чем требуется
var ErrInsufficientCandles = errors.New("недостаточно свечей")

// UpstreamError ошибка обращения к бирже
type UpstreamError struct {
	Op     string
	Symbol string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// retryable false для ошибок параметров запроса (коды -1100..-1199: неверный символ, интервал, лимит).
// Лимиты запросов (-1003) и ошибки сервера повторяются.
func retryable(err error) bool {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code > -1100 || apiErr.Code <= -1200
	}
	return true
}

// IsUpstream сообщает, что ошибка пришла от биржи
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
