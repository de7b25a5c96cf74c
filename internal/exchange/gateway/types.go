package gateway

// 网关 REST/WS 报文。价格与金额均为十进制字符串（人类单位），与链上定点精度无关。

// 网关错误码
const (
	codeMarketNotFound    = "MARKET_NOT_FOUND"
	codeAccountNotFound   = "ACCOUNT_NOT_FOUND"
	codeAccountExists     = "ACCOUNT_EXISTS"
	codeInsufficientFunds = "INSUFFICIENT_FUNDS"
)

// 签名请求头
const (
	headerAuthority = "X-Perp-Authority"
	headerTimestamp = "X-Perp-Timestamp"
	headerSignature = "X-Perp-Signature"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type marketInfo struct {
	MarketIndex int    `json:"marketIndex"`
	Symbol      string `json:"symbol"`
	MarketType  string `json:"marketType"`
}

type marketsResponse struct {
	Markets []marketInfo `json:"markets"`
}

type priceResponse struct {
	MarketIndex int    `json:"marketIndex"`
	MarkPrice   string `json:"markPrice"`
}

type slippageResponse struct {
	MarkPrice  string `json:"markPrice"`
	EntryPrice string `json:"entryPrice"`
	NewPrice   string `json:"newPrice"`
}

type userResponse struct {
	Authority  string `json:"authority"`
	Collateral string `json:"collateral"`
}

type initUserRequest struct {
	Authority      string `json:"authority"`
	DepositAmount  string `json:"depositAmount"`
	FundingAccount string `json:"fundingAccount"`
}

type orderRequest struct {
	MarketIndex int    `json:"marketIndex"`
	MarketType  string `json:"marketType"`
	Direction   string `json:"direction"`
	QuoteAmount string `json:"quoteAmount"`
}

type closeRequest struct {
	MarketIndex int    `json:"marketIndex"`
	MarketType  string `json:"marketType"`
}

type txResponse struct {
	Tx string `json:"tx"`
}

// WS 频道消息
type wsRequest struct {
	Method    string `json:"method"`
	Channel   string `json:"channel"`
	Authority string `json:"authority"`
}

type wsMessage struct {
	Channel string          `json:"channel"`
	Type    string          `json:"type"` // subscribed / update / error
	Error   string          `json:"error,omitempty"`
	Account *accountPayload `json:"account,omitempty"`
}

type accountPayload struct {
	Collateral string            `json:"collateral"`
	Positions  []positionPayload `json:"positions"`
}

type positionPayload struct {
	MarketIndex int    `json:"marketIndex"`
	BaseAmount  string `json:"baseAmount"`
	QuoteAmount string `json:"quoteAmount"`
}
