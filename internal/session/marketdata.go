package session

import (
	"context"
	"errors"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/perpsession/internal/domain"
	"github.com/betbot/perpsession/internal/ports"
)

// Reader 行情读取：只读，无副作用，失败不重试
type Reader struct {
	markets ports.MarketReader
	log     *logrus.Entry
}

func NewReader(markets ports.MarketReader, log *logrus.Entry) *Reader {
	return &Reader{markets: markets, log: log.WithField("component", "marketdata")}
}

// ResolveMarket 符号 -> 市场索引
func (r *Reader) ResolveMarket(ctx context.Context, symbol string) (domain.Market, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	m, err := r.markets.ResolveMarket(ctx, symbol)
	if err != nil {
		return domain.Market{}, classifyMarketErr("resolveMarket "+symbol, err)
	}
	if !m.IsValid() {
		return domain.Market{}, newError(KindMarketUnavailable, "resolveMarket "+symbol, ports.ErrMarketNotFound)
	}
	r.log.WithField("market", m.String()).Debug("市场已解析")
	return m, nil
}

// CurrentPrice 当前标记价格
func (r *Reader) CurrentPrice(ctx context.Context, market domain.Market) (domain.Price, error) {
	p, err := r.markets.MarkPrice(ctx, market)
	if err != nil {
		return domain.Price{}, classifyMarketErr("currentPrice "+market.Symbol, err)
	}
	return p, nil
}

// classifyMarketErr 市场无法解析 -> MarketUnavailable；其它（网络等）原样带上下文返回
func classifyMarketErr(op string, err error) error {
	if errors.Is(err, ports.ErrMarketNotFound) {
		return newError(KindMarketUnavailable, op, err)
	}
	return pkgerrors.Wrap(err, op)
}
