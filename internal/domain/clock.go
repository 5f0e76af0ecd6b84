package domain

import "time"

// WholeDays returns the number of whole 24-hour days between from and to,
// truncating any partial day. Negative spans truncate toward zero.
func WholeDays(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
