// Package tradinghours は国内市場の立会時間から取引中かどうかを推定します。
// 上流にフィールドがないため、壁時計からの推定値であり権威ある値ではありません。
package tradinghours

import (
	"time"
)

// China は中国標準時です。タイムゾーンDBがない環境では固定オフセットで代用します。
var China = loadChina()

func loadChina() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return time.FixedZone("CST", 8*60*60)
	}
	return loc
}

// session は立会時間帯（分単位、開始を含み終了を含まない）です。
type session struct {
	start, end int
}

// 前場 9:30-11:30、後場 13:00-15:00
var sessions = []session{
	{start: 9*60 + 30, end: 11*60 + 30},
	{start: 13 * 60, end: 15 * 60},
}

// IsOpen は t が立会時間内かを返します。土日は常に false です。
func IsOpen(t time.Time) bool {
	local := t.In(China)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	sec := local.Hour()*3600 + local.Minute()*60 + local.Second()
	for _, s := range sessions {
		if sec >= s.start*60 && sec < s.end*60 {
			return true
		}
	}
	return false
}

// TimeUntilNextOpen は次の寄り付きまでの期間を返します。立会中なら 0 です。
func TimeUntilNextOpen(now time.Time) time.Duration {
	if IsOpen(now) {
		return 0
	}
	local := now.In(China)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, China)
	for i := 0; i < 8; i++ {
		d := day.AddDate(0, 0, i)
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		for _, s := range sessions {
			open := d.Add(time.Duration(s.start) * time.Minute)
			if open.After(local) {
				return open.Sub(local)
			}
		}
	}
	return 0
}
