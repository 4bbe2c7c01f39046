package sina

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"marketdata_backend/internal/feature/marketdata/domain"
	"marketdata_backend/internal/feature/marketdata/domain/entity"
	"marketdata_backend/internal/shared/stockcode"
)

// maxPages は空ページが返らない場合の打ち切りページ数です。
const maxPages = 100

// nodeRow は Market_Center.getHQNodeData の1行です。
type nodeRow struct {
	Symbol string `json:"symbol"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	Trade  string `json:"trade"`
}

// GetStockList は沪深A株（hs_a ノード）を空ページが返るまで取得します。
func (a *Adapter) GetStockList(ctx context.Context) (stocks []entity.StockBasic, err error) {
	start := a.now()
	defer func() { a.health.Observe(start, err) }()

	const op = "getStockList"
	for page := 1; page <= maxPages; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("num", strconv.Itoa(a.cfg.PageSize))
		q.Set("sort", "symbol")
		q.Set("asc", "1")
		q.Set("node", "hs_a")
		u := fmt.Sprintf("%s/quotes_service/api/json_v2.php/Market_Center.getHQNodeData?%s", a.cfg.ListURL, q.Encode())

		res, err := a.get(ctx, op, u)
		if err != nil {
			return nil, err
		}
		text, err := bodyText(res)
		if err != nil {
			return nil, domain.NewParseError(Name, op, err)
		}
		text = strings.TrimSpace(text)
		if text == "" || text == "null" || text == "[]" {
			break
		}

		var rows []nodeRow
		if err := json.Unmarshal([]byte(text), &rows); err != nil {
			return nil, domain.NewParseError(Name, op, fmt.Errorf("decode page %d: %w", page, err))
		}
		for _, r := range rows {
			code := r.Code
			if !stockcode.IsValid(code) {
				if c, err := stockcode.FromSina(r.Symbol); err == nil {
					code = c
				} else {
					continue
				}
			}
			price, _ := strconv.ParseFloat(r.Trade, 64)
			stocks = append(stocks, entity.StockBasic{
				Code:     code,
				Name:     r.Name,
				Market:   entity.MarketA,
				IsActive: price > 0,
			})
		}
		if len(rows) < a.cfg.PageSize {
			break
		}
	}
	if len(stocks) == 0 {
		return nil, domain.NewNotFoundError(Name, op, "stock list")
	}
	return stocks, nil
}
