// Package calendar 提供粗粒度的交易日历判断，只区分交易日，不计算盘中时段。
// 浮动节假日按规则推导，复活节相关日期维护到 2030 年。
package calendar

import "time"

type monthDay struct {
	month time.Month
	day   int
}

var goodFridays = map[int]monthDay{
	2025: {time.April, 18},
	2026: {time.April, 3},
	2027: {time.March, 26},
	2028: {time.April, 14},
	2029: {time.March, 30},
	2030: {time.April, 19},
}

var easterMondays = map[int]monthDay{
	2025: {time.April, 21},
	2026: {time.April, 6},
	2027: {time.March, 29},
	2028: {time.April, 17},
	2029: {time.April, 2},
	2030: {time.April, 22},
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func matches(t time.Time, md monthDay) bool {
	return t.Month() == md.month && t.Day() == md.day
}

// IsUSOpen 判断美国市场（NYSE、NASDAQ）当日是否为交易日。
func IsUSOpen(t time.Time) bool {
	if isWeekend(t) {
		return false
	}
	for _, md := range []monthDay{{time.January, 1}, {time.July, 4}, {time.December, 25}} {
		if matches(t, md) {
			return false
		}
	}
	// 马丁·路德·金日与总统日：1月/2月的第三个周一。
	if (t.Month() == time.January || t.Month() == time.February) &&
		t.Weekday() == time.Monday && t.Day() >= 15 && t.Day() <= 21 {
		return false
	}
	if md, ok := goodFridays[t.Year()]; ok && matches(t, md) {
		return false
	}
	// 阵亡将士纪念日：5月最后一个周一。
	if t.Month() == time.May && t.Weekday() == time.Monday && t.Day() >= 25 {
		return false
	}
	// 劳动节：9月第一个周一。
	if t.Month() == time.September && t.Weekday() == time.Monday && t.Day() <= 7 {
		return false
	}
	// 感恩节：11月第四个周四。
	if t.Month() == time.November && t.Weekday() == time.Thursday && t.Day() >= 22 && t.Day() <= 28 {
		return false
	}
	return true
}

// IsEuropeOpen 判断欧洲市场（Euronext、Xetra、SIX）当日是否为交易日。
func IsEuropeOpen(t time.Time) bool {
	if isWeekend(t) {
		return false
	}
	for _, md := range []monthDay{{time.January, 1}, {time.May, 1}, {time.December, 25}} {
		if matches(t, md) {
			return false
		}
	}
	if md, ok := goodFridays[t.Year()]; ok && matches(t, md) {
		return false
	}
	if md, ok := easterMondays[t.Year()]; ok && matches(t, md) {
		return false
	}
	return true
}

// IsAsiaOpen 判断亚洲市场（东京、香港）当日是否为交易日。
func IsAsiaOpen(t time.Time) bool {
	if isWeekend(t) {
		return false
	}
	for _, md := range []monthDay{{time.January, 1}, {time.December, 25}} {
		if matches(t, md) {
			return false
		}
	}
	return true
}

// OpenMarkets 返回当日开市的市场名称列表。
func OpenMarkets(t time.Time) []string {
	var open []string
	if IsUSOpen(t) {
		open = append(open, "US (NYSE, NASDAQ)")
	}
	if IsEuropeOpen(t) {
		open = append(open, "Europe (Euronext, Xetra, SIX)")
	}
	if IsAsiaOpen(t) {
		open = append(open, "Asia (Tokyo, Hong Kong)")
	}
	return open
}
