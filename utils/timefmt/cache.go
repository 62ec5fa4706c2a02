// Package timefmt renders log timestamps in the form YYYY-MM-DD[HH:MM:SS.mmmmmm].
package timefmt

import (
	"strconv"
	"sync"
	"time"
)

// Len is the rendered width for years 0000 through 9999.
const Len = 27

var (
	twoDigits     [100][2]byte
	twoDigitsOnce sync.Once
)

func initTwoDigits() {
	for i := 0; i < 100; i++ {
		twoDigits[i] = [2]byte{byte('0' + i/10), byte('0' + i%10)}
	}
}

// Cache renders timestamps, reusing the date and time-of-day text between
// calls. The date is recomputed when the second leaves the cached day and the
// time of day when the second changes. Only the microsecond digits are
// written on every call.
//
// A Cache is owned by a single goroutine. The zero value renders local time.
type Cache struct {
	utc   bool
	valid bool

	sec      int64
	dayStart int64
	dayEnd   int64

	// buf holds the rendered text at buf[head:]. Wide years move head left.
	buf  [48]byte
	head int
}

// NewCache returns a Cache rendering in UTC or in local time.
func NewCache(utc bool) *Cache {
	return &Cache{utc: utc}
}

// Reset drops cached text so the next Format renders everything.
func (c *Cache) Reset() {
	c.valid = false
}

// Format renders t. The returned slice aliases internal storage and is valid
// until the next call.
func (c *Cache) Format(t time.Time) []byte {
	twoDigitsOnce.Do(initTwoDigits)

	if c.utc {
		t = t.UTC()
	} else {
		t = t.Local()
	}

	sec := t.Unix()
	if !c.valid || sec < c.dayStart || sec >= c.dayEnd {
		c.renderDate(t)
		c.renderClock(t)
	} else if sec != c.sec {
		c.renderClock(t)
	}
	c.sec = sec
	c.valid = true

	// [HH:MM:SS. occupies buf[tail-17:tail-7]
	tail := len(c.buf)
	us := t.Nanosecond() / 1000
	c.buf[tail-1] = ']'
	for i := tail - 2; i >= tail-7; i-- {
		c.buf[i] = byte('0' + us%10)
		us /= 10
	}
	return c.buf[c.head:]
}

// renderDate writes YYYY-MM-DD before the clock part and caches the bounds
// of t's day. Day bounds come from the calendar so days that are not 24h
// long are handled.
func (c *Cache) renderDate(t time.Time) {
	y, m, d := t.Date()
	loc := t.Location()
	c.dayStart = time.Date(y, m, d, 0, 0, 0, 0, loc).Unix()
	c.dayEnd = time.Date(y, m, d+1, 0, 0, 0, 0, loc).Unix()

	// -MM-DD
	end := len(c.buf) - 17
	c.buf[end-1] = twoDigits[d][1]
	c.buf[end-2] = twoDigits[d][0]
	c.buf[end-3] = '-'
	c.buf[end-4] = twoDigits[m][1]
	c.buf[end-5] = twoDigits[m][0]
	c.buf[end-6] = '-'
	yearEnd := end - 6

	if y >= 0 && y <= 9999 {
		hi, lo := y/100, y%100
		c.buf[yearEnd-1] = twoDigits[lo][1]
		c.buf[yearEnd-2] = twoDigits[lo][0]
		c.buf[yearEnd-3] = twoDigits[hi][1]
		c.buf[yearEnd-4] = twoDigits[hi][0]
		c.head = yearEnd - 4
		return
	}

	var tmp [24]byte
	year := strconv.AppendInt(tmp[:0], int64(y), 10)
	c.head = yearEnd - len(year)
	copy(c.buf[c.head:], year)
}

// renderClock writes [HH:MM:SS. between the date and the microseconds.
func (c *Cache) renderClock(t time.Time) {
	h, mi, s := t.Clock()
	p := len(c.buf) - 17
	c.buf[p] = '['
	c.buf[p+1] = twoDigits[h][0]
	c.buf[p+2] = twoDigits[h][1]
	c.buf[p+3] = ':'
	c.buf[p+4] = twoDigits[mi][0]
	c.buf[p+5] = twoDigits[mi][1]
	c.buf[p+6] = ':'
	c.buf[p+7] = twoDigits[s][0]
	c.buf[p+8] = twoDigits[s][1]
	c.buf[p+9] = '.'
}
