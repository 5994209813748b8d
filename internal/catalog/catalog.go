// Package catalog has the fixed set of tradable instruments
package catalog

import (
	"sort"
	"strings"

	"github.com/chucky-1/virtual-trader/internal/model"
)

// Catalog is an immutable lookup table keyed by ticker
type Catalog struct {
	instruments map[string]model.Instrument
	tickers     []string
}

// New is constructor. Tickers are stored upper case; a later duplicate replaces an earlier one.
func New(instruments []model.Instrument) *Catalog {
	c := &Catalog{instruments: make(map[string]model.Instrument, len(instruments))}
	for _, in := range instruments {
		in.Ticker = strings.ToUpper(in.Ticker)
		c.instruments[in.Ticker] = in
	}
	for ticker := range c.instruments {
		c.tickers = append(c.tickers, ticker)
	}
	sort.Strings(c.tickers)
	return c
}

// Default returns the catalog of MOEX shares the simulator trades
func Default() *Catalog {
	return New(moex)
}

// Get returns the instrument by ticker, case-insensitive
func (c *Catalog) Get(ticker string) (model.Instrument, bool) {
	in, ok := c.instruments[strings.ToUpper(ticker)]
	return in, ok
}

// Tickers returns all tickers in alphabetical order
func (c *Catalog) Tickers() []string {
	out := make([]string, len(c.tickers))
	copy(out, c.tickers)
	return out
}

// All returns all instruments in ticker order
func (c *Catalog) All() []model.Instrument {
	out := make([]model.Instrument, 0, len(c.tickers))
	for _, ticker := range c.tickers {
		out = append(out, c.instruments[ticker])
	}
	return out
}

// Len returns number of instruments
func (c *Catalog) Len() int {
	return len(c.tickers)
}

var moex = []model.Instrument{
	{Ticker: "AFLT", Name: "Аэрофлот", BasePrice: 61.27, Volatility: 0.03, DividendYield: 8.5},
	{Ticker: "AFKS", Name: "Система АО", BasePrice: 16.202, Volatility: 0.03, DividendYield: 12.0},
	{Ticker: "ALRS", Name: "АЛРОСА АО", BasePrice: 47.22, Volatility: 0.03, DividendYield: 7.2},
	{Ticker: "BANE", Name: "Башнефть АО", BasePrice: 1748.50, Volatility: 0.03, DividendYield: 15.8},
	{Ticker: "DVEC", Name: "Дальэнергосбыт", BasePrice: 2.115, Volatility: 0.03, DividendYield: 11.3},
	{Ticker: "ELMT", Name: "Элемент", BasePrice: 0.14105, Volatility: 0.03, DividendYield: 0.0},
	{Ticker: "ENPG", Name: "ЭН+ГРУП АО", BasePrice: 473.1, Volatility: 0.03, DividendYield: 6.8},
	{Ticker: "FEES", Name: "ФосАгро АО", BasePrice: 0.0698, Volatility: 0.03, DividendYield: 9.1},
	{Ticker: "FIVE", Name: "Пятёрочка АО", BasePrice: 1750.00, Volatility: 0.03, DividendYield: 7.5},
	{Ticker: "FIXR", Name: "Фикс Прайс", BasePrice: 1246.6, Volatility: 0.03, DividendYield: 0.0},
	{Ticker: "FLOT", Name: "Совкомфлот", BasePrice: 84.46, Volatility: 0.03, DividendYield: 8.2},
	{Ticker: "GAZA", Name: "ГАЗ АО", BasePrice: 619.0, Volatility: 0.03, DividendYield: 6.9},
	{Ticker: "GAZP", Name: "ГАЗПРОМ АО", BasePrice: 134.24, Volatility: 0.03, DividendYield: 18.7},
	{Ticker: "HYDR", Name: "РусГидро АО", BasePrice: 0.88, Volatility: 0.03, DividendYield: 14.2},
	{Ticker: "IRAO", Name: "Интер РАО ЕЭС АО", BasePrice: 3.75, Volatility: 0.03, DividendYield: 13.5},
	{Ticker: "KLVZ", Name: "Кристалл", BasePrice: 3.608, Volatility: 0.03, DividendYield: 0.0},
	{Ticker: "KOGK", Name: "Когалымнефтегаз", BasePrice: 37800.0, Volatility: 0.03, DividendYield: 16.4},
	{Ticker: "LENT", Name: "Лента АО", BasePrice: 1701.50, Volatility: 0.03, DividendYield: 0.0},
	{Ticker: "LKOH", Name: "ЛУКОЙЛ АО", BasePrice: 6202.5, Volatility: 0.03, DividendYield: 9.8},
	{Ticker: "MAGN", Name: "Магнитогорский МК АО", BasePrice: 312.00, Volatility: 0.03, DividendYield: 11.7},
	{Ticker: "MGNT", Name: "Магнит АО", BasePrice: 6800.00, Volatility: 0.03, DividendYield: 8.9},
	{Ticker: "MOEX", Name: "Московская Биржа АО", BasePrice: 180.46, Volatility: 0.03, DividendYield: 7.1},
	{Ticker: "MRKK", Name: "Группа Мир", BasePrice: 16.64, Volatility: 0.03, DividendYield: 0.0},
	{Ticker: "MTLR", Name: "Мечел АО", BasePrice: 58.70, Volatility: 0.03, DividendYield: 0.0},
	{Ticker: "MTSS", Name: "МТС-АО", BasePrice: 217.05, Volatility: 0.03, DividendYield: 10.3},
	{Ticker: "NLMK", Name: "НЛМК АО", BasePrice: 116.9, Volatility: 0.03, DividendYield: 12.4},
	{Ticker: "NVTK", Name: "Новатэк АО", BasePrice: 1138.00, Volatility: 0.03, DividendYield: 13.6},
	{Ticker: "OZON", Name: "Ozon", BasePrice: 4435.0, Volatility: 0.03, DividendYield: 0.0},
	{Ticker: "PAZA", Name: "ПавлАвт АО", BasePrice: 9580.0, Volatility: 0.03, DividendYield: 0.0},
	{Ticker: "PHOR", Name: "ФосАгро АО", BasePrice: 6805.0, Volatility: 0.03, DividendYield: 9.1},
	{Ticker: "PIKK", Name: "ПИК АО", BasePrice: 636.90, Volatility: 0.03, DividendYield: 0.0},
	{Ticker: "PLZL", Name: "Полюс АО", BasePrice: 12500.00, Volatility: 0.03, DividendYield: 0.0},
	{Ticker: "POLY", Name: "Полиметалл АО", BasePrice: 12500.00, Volatility: 0.03, DividendYield: 0.0},
	{Ticker: "PRMD", Name: "ПРОМОМЕД", BasePrice: 418.0, Volatility: 0.03, DividendYield: 0.0},
	{Ticker: "QIWI", Name: "QIWI", BasePrice: 238.4, Volatility: 0.03, DividendYield: 0.0},
	{Ticker: "RASP", Name: "Распадская", BasePrice: 223.2, Volatility: 0.03, DividendYield: 0.0},
	{Ticker: "RGSS", Name: "РГС СК АО", BasePrice: 0.2344, Volatility: 0.03, DividendYield: 10.8},
	{Ticker: "ROSN", Name: "Роснефть", BasePrice: 445.05, Volatility: 0.03, DividendYield: 17.2},
	{Ticker: "RUAL", Name: "РУСАЛ ОК МКПАО АО", BasePrice: 32.71, Volatility: 0.03, DividendYield: 0.0},
	{Ticker: "RUSI", Name: "ИКРУСС-ИНВ", BasePrice: 65.2, Volatility: 0.03, DividendYield: 0.0},
	{Ticker: "SARE", Name: "СаратЭн-АО", BasePrice: 0.444, Volatility: 0.03, DividendYield: 0.0},
	{Ticker: "SELG", Name: "Селигдар АО", BasePrice: 48.3, Volatility: 0.03, DividendYield: 0.0},
	{Ticker: "SFIN", Name: "ЭсЭфАй АО", BasePrice: 1246.6, Volatility: 0.03, DividendYield: 0.0},
	{Ticker: "SGZH", Name: "Сегежа", BasePrice: 1.539, Volatility: 0.03, DividendYield: 0.0},
	{Ticker: "SIBN", Name: "Газпрнефть", BasePrice: 529.3, Volatility: 0.03, DividendYield: 11.9},
	{Ticker: "SNGS", Name: "Сургутнефтегаз АО", BasePrice: 22.785, Volatility: 0.03, DividendYield: 19.3},
	{Ticker: "TATN", Name: "Татнефть АО", BasePrice: 320.40, Volatility: 0.03, DividendYield: 14.7},
	{Ticker: "TCSG", Name: "Тинькофф Банк АО", BasePrice: 2750.00, Volatility: 0.03, DividendYield: 0.0},
	{Ticker: "TGKA", Name: "ТГК-1 АО", BasePrice: 0.006468, Volatility: 0.03, DividendYield: 0.0},
	{Ticker: "UPRO", Name: "Юнипро", BasePrice: 1.669, Volatility: 0.03, DividendYield: 12.8},
	{Ticker: "VKCO", Name: "VK АО", BasePrice: 4435.0, Volatility: 0.03, DividendYield: 0.0},
	{Ticker: "VTBR", Name: "Банк ВТБ АО", BasePrice: 0.07972, Volatility: 0.03, DividendYield: 16.1},
	{Ticker: "WUSH", Name: "ВУШ Холдинг", BasePrice: 141.83, Volatility: 0.03, DividendYield: 0.0},
	{Ticker: "YNDX", Name: "Yandex clA", BasePrice: 2450.00, Volatility: 0.03, DividendYield: 0.0},
	{Ticker: "SBER", Name: "Сбербанк АО", BasePrice: 313.43, Volatility: 0.03, DividendYield: 13.2},
}
