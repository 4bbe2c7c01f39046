package usecase

import (
	"crypto/sha1"
	"encoding/hex"
	"slices"
	"strings"
)

// ホットキャッシュのキー。名前空間は RedisTier 側で付与されます。
const (
	stockListKey     = "stocklist"
	quoteKeyPrefix   = "quote:"
	batchQuotePrefix = "quotes:"
)

func quoteKey(code string) string {
	return quoteKeyPrefix + code
}

// batchQuoteKey は銘柄集合ごとに異なるキーを返します。並び順と重複には依存しません。
func batchQuoteKey(codes []string) string {
	return batchQuotePrefix + codeSetHash(codes)
}

func codeSetHash(codes []string) string {
	sorted := slices.Clone(codes)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	sum := sha1.Sum([]byte(strings.Join(sorted, ",")))
	return hex.EncodeToString(sum[:])[:16]
}
