package entity

// RealtimeQuote は1銘柄の最新気配です。
// ホットキャッシュでは銘柄ごとに最新の1件のみを保持します。
type RealtimeQuote struct {
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"changePercent"`
	ChangeAmount  float64 `json:"changeAmount"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	PreClose      float64 `json:"preClose"`
	Volume        float64 `json:"volume"`
	Amount        float64 `json:"amount"`

	// 板情報（最良5本）。提供元が返さない場合は空。
	BidPrice []float64 `json:"bidPrice,omitempty"`
	BidVol   []float64 `json:"bidVol,omitempty"`
	AskPrice []float64 `json:"askPrice,omitempty"`
	AskVol   []float64 `json:"askVol,omitempty"`

	// Timestamp はエポックミリ秒です。
	Timestamp int64 `json:"timestamp"`
	IsOpen    bool  `json:"isOpen"`
}

// QuoteOptions は気配取得時のオプションです。
type QuoteOptions struct {
	// ForceRefresh が true の場合、キャッシュを参照せずアダプターへ問い合わせます。
	ForceRefresh bool
}
