package models

import "strings"

const quoteAsset = "USDT"

// BaseSymbol приводит символ к базовому активу: "btcusdt" -> "BTC"
func BaseSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.HasSuffix(s, quoteAsset) && len(s) > len(quoteAsset) {
		s = strings.TrimSuffix(s, quoteAsset)
	}
	return s
}

// PairSymbol возвращает торговую пару к USDT: "BTC" -> "BTCUSDT"
func PairSymbol(symbol string) string {
	return BaseSymbol(symbol) + quoteAsset
}

// SameAsset сравнивает символы по базовому активу
func SameAsset(a, b string) bool {
	return BaseSymbol(a) == BaseSymbol(b)
}
