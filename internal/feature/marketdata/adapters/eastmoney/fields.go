package eastmoney

import (
	"encoding/json"
	"strconv"
	"strings"
)

// num は数値フィールドを読みます。fltt=2 では値がない場合に "-" が返るため、
// 文字列・null・"-" はいずれも (0, false) として扱います。
func num(row map[string]json.RawMessage, key string) (float64, bool) {
	raw, ok := row[key]
	if !ok || len(raw) == 0 {
		return 0, false
	}
	s := string(raw)
	if s == "null" {
		return 0, false
	}
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
	}
	if s == "" || s == "-" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// str は文字列フィールドを読みます。数値で返された場合はその表記を返します。
func str(row map[string]json.RawMessage, key string) string {
	raw, ok := row[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if string(raw) == "null" {
		return ""
	}
	return string(raw)
}
