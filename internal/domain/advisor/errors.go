package advisor

import "errors"

// ErrQuotaExceeded is returned when the AI provider rejects a call over
// rate or billing limits. Router menerjemahkan ini jadi HTTP 429.
var ErrQuotaExceeded = errors.New("ai quota exceeded")
