package eastmoney

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"marketdata_backend/internal/feature/marketdata/adapters/eastmoney/dto"
	"marketdata_backend/internal/feature/marketdata/domain"
	"marketdata_backend/internal/feature/marketdata/domain/entity"
	"marketdata_backend/internal/shared/stockcode"
)

// aShareFilter は上海・深セン・北京のA株全体を表す clist の fs パラメータです。
const aShareFilter = "m:0+t:6,m:0+t:80,m:1+t:2,m:1+t:23,m:0+t:81+s:2048"

// maxPages は total が壊れていた場合の打ち切りページ数です。
const maxPages = 50

// GetStockList はA株全銘柄をページングしながら取得します。
func (a *Adapter) GetStockList(ctx context.Context) (stocks []entity.StockBasic, err error) {
	start := a.now()
	defer func() { a.health.Observe(start, err) }()

	const op = "getStockList"
	for pn := 1; pn <= maxPages; pn++ {
		q := url.Values{}
		q.Set("pn", strconv.Itoa(pn))
		q.Set("pz", strconv.Itoa(a.cfg.PageSize))
		q.Set("po", "1")
		q.Set("np", "1")
		q.Set("fltt", "2")
		q.Set("invt", "2")
		q.Set("fid", "f12")
		q.Set("fs", aShareFilter)
		q.Set("fields", "f2,f12,f13,f14,f26,f100")
		u := fmt.Sprintf("%s/api/qt/clist/get?%s", a.cfg.QuoteURL, q.Encode())

		var body dto.ListResponse
		if err := a.getJSON(ctx, op, u, &body); err != nil {
			return nil, err
		}
		if body.Data == nil || len(body.Data.Diff) == 0 {
			break
		}
		stocks = append(stocks, parseStockRows(body.Data)...)
		if len(stocks) >= body.Data.Total || len(body.Data.Diff) < a.cfg.PageSize {
			break
		}
	}
	if len(stocks) == 0 {
		return nil, domain.NewNotFoundError(Name, op, "stock list")
	}
	return stocks, nil
}

func parseStockRows(data *dto.ListData) []entity.StockBasic {
	out := make([]entity.StockBasic, 0, len(data.Diff))
	for _, row := range data.Diff {
		code := str(row, "f12")
		if !stockcode.IsValid(code) {
			continue
		}
		_, trading := num(row, "f2")
		s := entity.StockBasic{
			Code:     code,
			Name:     str(row, "f14"),
			Market:   entity.MarketA,
			Industry: str(row, "f100"),
			IsActive: trading,
		}
		if s.Industry == "-" {
			s.Industry = ""
		}
		if d, ok := num(row, "f26"); ok && d > 0 {
			s.ListDate = strconv.FormatInt(int64(d), 10)
		}
		out = append(out, s)
	}
	return out
}
