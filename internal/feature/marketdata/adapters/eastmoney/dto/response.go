// Package dto はEastmoney APIのレスポンス構造を定義します。
package dto

import "encoding/json"

// ListResponse は ulist.np / clist のレスポンスです。
// diff の各行はフィールドコード（"f2" など）をキーとする不透明なオブジェクトです。
type ListResponse struct {
	RC   int       `json:"rc"`
	Data *ListData `json:"data"`
}

// ListData はリスト系APIの data 部です。
type ListData struct {
	Total int                          `json:"total"`
	Diff  []map[string]json.RawMessage `json:"diff"`
}

// KlineResponse は kline/get のレスポンスです。
type KlineResponse struct {
	RC   int        `json:"rc"`
	Data *KlineData `json:"data"`
}

// KlineData の Klines は "日付,始値,終値,高値,安値,出来高,売買代金,振幅,騰落率,騰落額,回転率" 形式の行です。
type KlineData struct {
	Code   string   `json:"code"`
	Market int      `json:"market"`
	Name   string   `json:"name"`
	Klines []string `json:"klines"`
}
