package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/perpsession/pkg/sigchan"
	"github.com/betbot/perpsession/pkg/syncgroup"
)

const (
	accountChannel      = "account"
	defaultPingInterval = 15 * time.Second
	handshakeTimeout    = 10 * time.Second
)

// AccountView 订阅得到的实时账户视图
type AccountView struct {
	Collateral decimal.Decimal
	Positions  map[int]PositionView
	UpdatedAt  time.Time
}

// PositionView 单个市场的仓位
type PositionView struct {
	Base  decimal.Decimal
	Quote decimal.Decimal
}

// AccountStream 账户频道的 WebSocket 订阅。
// Subscribe 在收到 subscribed 确认后返回，之后由 readLoop 持续更新视图。
type AccountStream struct {
	url    string
	header http.Header
	log    *logrus.Entry

	connMu sync.Mutex
	conn   *websocket.Conn

	viewMu sync.RWMutex
	view   AccountView

	updates *sigchan.Chan
	loops   *syncgroup.SyncGroup
	cancel  context.CancelFunc
}

func NewAccountStream(url string, header http.Header, log *logrus.Entry) *AccountStream {
	return &AccountStream{
		url:     url,
		header:  header,
		log:     log.WithField("component", "account_ws"),
		updates: sigchan.New(1),
		loops:   syncgroup.NewSyncGroup(),
	}
}

// Subscribe 连接并订阅 authority 的账户频道
func (s *AccountStream) Subscribe(ctx context.Context, authority solana.PublicKey) error {
	s.connMu.Lock()
	if s.conn != nil {
		s.connMu.Unlock()
		return nil
	}
	s.connMu.Unlock()

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		return errors.Wrapf(err, "dial %s", s.url)
	}

	// 确认前的读写受 ctx 截止时间约束
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(dl)
		_ = conn.SetWriteDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	req := wsRequest{Method: "subscribe", Channel: accountChannel, Authority: authority.String()}
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return errors.Wrap(err, "send subscribe")
	}

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			conn.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "await subscribe ack")
		}
		if msg.Channel != accountChannel {
			continue
		}
		if msg.Type == "error" {
			conn.Close()
			return fmt.Errorf("account subscription rejected: %s", msg.Error)
		}
		if msg.Account != nil {
			s.apply(msg.Account)
		}
		if msg.Type == "subscribed" {
			break
		}
	}

	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})

	loopCtx, cancel := context.WithCancel(context.Background())
	s.connMu.Lock()
	s.conn = conn
	s.cancel = cancel
	s.connMu.Unlock()

	s.loops.Add(func() { s.readLoop(loopCtx, conn) })
	s.loops.Add(func() { s.pingLoop(loopCtx, conn) })
	s.loops.Run()
	s.log.WithField("authority", authority.String()).Info("账户频道已订阅")
	return nil
}

// View 当前账户视图副本
func (s *AccountStream) View() AccountView {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	out := AccountView{Collateral: s.view.Collateral, UpdatedAt: s.view.UpdatedAt, Positions: make(map[int]PositionView, len(s.view.Positions))}
	for k, v := range s.view.Positions {
		out.Positions[k] = v
	}
	return out
}

// ViewSince 等待 UpdatedAt 不早于 since 的视图；ctx 结束时返回最后的视图和 ctx 错误
func (s *AccountStream) ViewSince(ctx context.Context, since time.Time) (AccountView, error) {
	for {
		view := s.View()
		if !view.UpdatedAt.Before(since) {
			return view, nil
		}
		if err := s.updates.Wait(ctx); err != nil {
			return view, err
		}
	}
}

// Subscribed 是否已建立订阅
func (s *AccountStream) Subscribed() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn != nil
}

func (s *AccountStream) apply(p *accountPayload) {
	view := AccountView{Positions: make(map[int]PositionView, len(p.Positions)), UpdatedAt: time.Now()}
	if d, err := decimal.NewFromString(p.Collateral); err == nil {
		view.Collateral = d
	}
	for _, pos := range p.Positions {
		base, _ := decimal.NewFromString(pos.BaseAmount)
		quote, _ := decimal.NewFromString(pos.QuoteAmount)
		view.Positions[pos.MarketIndex] = PositionView{Base: base, Quote: quote}
	}
	s.viewMu.Lock()
	s.view = view
	s.viewMu.Unlock()
	s.updates.Emit()
}

func (s *AccountStream) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.log.WithError(err).Warn("账户频道读取失败，视图停止更新")
			}
			return
		}
		if msg.Channel == accountChannel && msg.Account != nil {
			s.apply(msg.Account)
		}
	}
}

func (s *AccountStream) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(defaultPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.connMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			s.connMu.Unlock()
			if err != nil {
				s.log.WithError(err).Debug("ping 失败")
				return
			}
		}
	}
}

// Close 关闭订阅
func (s *AccountStream) Close() error {
	s.connMu.Lock()
	conn := s.conn
	cancel := s.cancel
	s.conn = nil
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	}
	s.connMu.Unlock()

	if conn == nil {
		return nil
	}
	cancel()
	err := conn.Close()
	if !s.loops.WaitTimeout(5 * time.Second) {
		s.log.Warn("账户频道关闭超时")
	}
	return err
}
