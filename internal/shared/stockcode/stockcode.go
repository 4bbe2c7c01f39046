// Package stockcode は6桁の銘柄コードと提供元ごとのコード表記の相互変換を提供します。
// 変換は先頭の数字のみで決まる純粋関数で、全アダプターが同じ規則を使います。
package stockcode

import (
	"fmt"
	"strings"
)

// Exchange は国内取引所です。
type Exchange string

const (
	Shanghai Exchange = "SH"
	Shenzhen Exchange = "SZ"
	Beijing  Exchange = "BJ"
)

// IsValid は6桁の数字であり、既知の取引所に割り当てられるかを返します。
func IsValid(code string) bool {
	_, err := ExchangeOf(code)
	return err == nil
}

// ExchangeOf は先頭の数字から取引所を判定します。
//   - 6     → 上海
//   - 0, 3  → 深セン
//   - 4, 8  → 北京
func ExchangeOf(code string) (Exchange, error) {
	if len(code) != 6 {
		return "", fmt.Errorf("stock code %q: want 6 digits", code)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("stock code %q: want 6 digits", code)
		}
	}
	switch code[0] {
	case '6':
		return Shanghai, nil
	case '0', '3':
		return Shenzhen, nil
	case '4', '8':
		return Beijing, nil
	}
	return "", fmt.Errorf("stock code %q: unknown exchange prefix", code)
}

// ToSina は "600000" を "sh600000" のような Sina 形式に変換します。
func ToSina(code string) (string, error) {
	ex, err := ExchangeOf(code)
	if err != nil {
		return "", err
	}
	return strings.ToLower(string(ex)) + code, nil
}

// FromSina は "sh600000" を "600000" に戻します。
func FromSina(symbol string) (string, error) {
	if len(symbol) != 8 {
		return "", fmt.Errorf("sina symbol %q: want 2-letter prefix and 6 digits", symbol)
	}
	prefix, code := Exchange(strings.ToUpper(symbol[:2])), symbol[2:]
	ex, err := ExchangeOf(code)
	if err != nil {
		return "", err
	}
	if ex != prefix {
		return "", fmt.Errorf("sina symbol %q: prefix does not match code", symbol)
	}
	return code, nil
}

// EastmoneyMarket は Eastmoney の secid に使う市場番号を返します。上海は 1、それ以外は 0 です。
func EastmoneyMarket(ex Exchange) int {
	if ex == Shanghai {
		return 1
	}
	return 0
}

// ToEastmoney は "600000" を "1.600000" のような secid に変換します。
func ToEastmoney(code string) (string, error) {
	ex, err := ExchangeOf(code)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d.%s", EastmoneyMarket(ex), code), nil
}

// FromEastmoney は secid を6桁コードに戻します。
func FromEastmoney(secid string) (string, error) {
	market, code, ok := strings.Cut(secid, ".")
	if !ok {
		return "", fmt.Errorf("eastmoney secid %q: missing market", secid)
	}
	ex, err := ExchangeOf(code)
	if err != nil {
		return "", err
	}
	if market != fmt.Sprint(EastmoneyMarket(ex)) {
		return "", fmt.Errorf("eastmoney secid %q: market does not match code", secid)
	}
	return code, nil
}

// Canonical は "sh600000"、"600000.SH"、"1.600000" などの表記を6桁コードに正規化します。
func Canonical(s string) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case len(s) == 8 && !strings.Contains(s, "."):
		return FromSina(s)
	case len(s) == 8 && s[1] == '.':
		return FromEastmoney(s)
	case len(s) == 9 && s[6] == '.':
		code, suffix := s[:6], Exchange(strings.ToUpper(s[7:]))
		ex, err := ExchangeOf(code)
		if err != nil {
			return "", err
		}
		if ex != suffix {
			return "", fmt.Errorf("stock code %q: suffix does not match code", s)
		}
		return code, nil
	}
	if _, err := ExchangeOf(s); err != nil {
		return "", err
	}
	return s, nil
}
