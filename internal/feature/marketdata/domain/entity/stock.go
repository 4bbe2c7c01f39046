// Package entity は市場データフィーチャーの正規化済みレコード型を定義します。
// アダプターは上流のワイヤーフォーマットをこれらの型に変換して返します。
package entity

// Market は銘柄が属する市場区分です。
type Market string

const (
	MarketA       Market = "A"
	MarketB       Market = "B"
	MarketHK      Market = "HK"
	MarketUS      Market = "US"
	MarketFutures Market = "FUTURES"
)

// StockBasic は銘柄一覧の1行を表します。識別子は Code です。
// 一覧は更新のたびに丸ごと置き換えられ、フィールド単位のマージは行いません。
type StockBasic struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Market   Market `json:"market"`
	Industry string `json:"industry,omitempty"`
	Sector   string `json:"sector,omitempty"`
	ListDate string `json:"listDate,omitempty"`
	IsActive bool   `json:"isActive"`
}

// StockListOptions は銘柄一覧取得時のオプションです。
type StockListOptions struct {
	// ForceRefresh が true の場合、キャッシュを参照せずアダプターへ問い合わせます。
	ForceRefresh bool
}
