package agent

import (
	"context"
	"strings"

	"github.com/etnz/tradeledger"
	"github.com/etnz/tradeledger/docs"
	"go.uber.org/zap"
)

// Names of the closed tool set.
const (
	ListAccounts              = "listAccounts"
	GetAllPortfolioSummaries  = "getAllPortfolioSummaries"
	PortfolioSummary          = "portfolioSummary"
	LatestPrice               = "latestPrice"
	TradeHistory              = "tradeHistory"
	AccountEvents             = "accountEvents"
	GetAccountTickerEvents    = "getAccountTickerEvents"
	TickerEvents              = "tickerEvents"
	RunQuery                  = "runQuery"
	GetAccountAnalysisContext = "getAccountAnalysisContext"
	InsertEvent               = "insertEvent"
)

type accountArgs struct {
	AccountID string `json:"account_id"`
}

type tickerArgs struct {
	Ticker string `json:"ticker_symbol"`
}

type tradeArgs struct {
	AccountID string `json:"account_id"`
	Type      string `json:"event_type"`
	Start     string `json:"start_ts"`
	End       string `json:"end_ts"`
}

type accountWindowArgs struct {
	AccountID string `json:"account_id"`
	Start     string `json:"start_ts"`
	End       string `json:"end_ts"`
}

type accountTickerArgs struct {
	AccountID string `json:"account_id"`
	Ticker    string `json:"ticker_symbol"`
	Start     string `json:"start_ts"`
	End       string `json:"end_ts"`
}

type tickerWindowArgs struct {
	Ticker string `json:"ticker_symbol"`
	Start  string `json:"start_ts"`
	End    string `json:"end_ts"`
}

type queryArgs struct {
	SQL string `json:"sql"`
}

type eventList struct {
	Count  int                 `json:"count"`
	Limit  int                 `json:"limit"`
	Events []tradeledger.Event `json:"events"`
}

func listing(l *tradeledger.Ledger, events []tradeledger.Event, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []tradeledger.Event{}
	}
	return eventList{Count: len(events), Limit: l.Limit(), Events: events}, nil
}

// typed adapts a handler over a decoded argument struct.
func typed[A any](fn func(ctx context.Context, args A) (any, error)) handler {
	return func(ctx context.Context, raw map[string]any) (any, error) {
		var args A
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return fn(ctx, args)
	}
}

// Schema helpers.

func object(required []string, props map[string]any) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func str(description string, enum ...string) map[string]any {
	s := map[string]any{"type": "string", "description": description}
	if len(enum) > 0 {
		s["enum"] = enum
	}
	return s
}

func num(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

var (
	accountProp = str("Account identifier, e.g. ACC-001.")
	tickerProp  = str("Ticker symbol, e.g. MSFT.")
	startProp   = str("Optional inclusive lower bound on event_ts: RFC 3339 timestamp with offset, YYYY-MM-DD, or relative day (-7d, -1m).")
	endProp     = str("Optional inclusive upper bound on event_ts, same formats as start_ts.")
)

// NewLibrary returns the closed tool set served over the ledger.
func NewLibrary(l *tradeledger.Ledger, logger *zap.Logger, metrics *Metrics) *Library {
	timestamps := docs.MustTopic("timestamps")
	positions := docs.MustTopic("positions")
	anomalies := docs.MustTopic("anomalies")

	return newLibrary(logger, metrics,
		entry{
			Tool: Tool{
				Name:        ListAccounts,
				Description: "Lists every account identifier present in the ledger, sorted.",
				Parameters:  object(nil, map[string]any{}),
				ReadOnly:    true,
			},
			call: func(ctx context.Context, _ map[string]any) (any, error) {
				accounts, err := l.ListAccounts(ctx)
				if err != nil {
					return nil, err
				}
				if accounts == nil {
					accounts = []string{}
				}
				return map[string]any{"count": len(accounts), "accounts": accounts}, nil
			},
		},
		entry{
			Tool: Tool{
				Name:        GetAllPortfolioSummaries,
				Description: "Returns the positions of every account with their anomaly flags, and the account level flags.\n\n" + positions + "\n" + anomalies,
				Parameters:  object(nil, map[string]any{}),
				ReadOnly:    true,
			},
			call: func(ctx context.Context, _ map[string]any) (any, error) {
				return l.AllSummaries(ctx)
			},
		},
		entry{
			Tool: Tool{
				Name:        PortfolioSummary,
				Description: "Returns the positions of one account.\n\n" + positions,
				Parameters:  object([]string{"account_id"}, map[string]any{"account_id": accountProp}),
				ReadOnly:    true,
			},
			call: typed(func(ctx context.Context, args accountArgs) (any, error) {
				positions, err := l.PortfolioSummary(ctx, args.AccountID)
				if err != nil {
					return nil, err
				}
				if positions == nil {
					positions = []tradeledger.Position{}
				}
				return map[string]any{"account_id": strings.TrimSpace(args.AccountID), "count": len(positions), "positions": positions}, nil
			}),
		},
		entry{
			Tool: Tool{
				Name:        LatestPrice,
				Description: "Returns the latest PRICE event of a ticker across all accounts. Fails with kind not_found when the ticker was never priced.",
				Parameters:  object([]string{"ticker_symbol"}, map[string]any{"ticker_symbol": tickerProp}),
				ReadOnly:    true,
			},
			call: typed(func(ctx context.Context, args tickerArgs) (any, error) {
				return l.LatestPrice(ctx, args.Ticker)
			}),
		},
		entry{
			Tool: Tool{
				Name:        TradeHistory,
				Description: "Lists BUY and SELL events of an account, newest first, capped to the result limit.\n\n" + timestamps,
				Parameters: object([]string{"account_id"}, map[string]any{
					"account_id": accountProp,
					"event_type": str("Optional trade type, defaults to both.", "BUY", "SELL"),
					"start_ts":   startProp,
					"end_ts":     endProp,
				}),
				ReadOnly: true,
			},
			call: typed(func(ctx context.Context, args tradeArgs) (any, error) {
				start, end, err := tradeledger.ParseWindow(args.Start, args.End)
				if err != nil {
					return nil, err
				}
				var typ tradeledger.EventType
				if s := strings.TrimSpace(args.Type); s != "" {
					if typ, err = tradeledger.ParseEventType(s); err != nil {
						return nil, err
					}
				}
				events, err := l.TradeHistory(ctx, args.AccountID, typ, start, end)
				return listing(l, events, err)
			}),
		},
		entry{
			Tool: Tool{
				Name:        AccountEvents,
				Description: "Lists every event (BUY, SELL, PRICE) of an account, newest first, capped to the result limit.\n\n" + timestamps,
				Parameters: object([]string{"account_id"}, map[string]any{
					"account_id": accountProp,
					"start_ts":   startProp,
					"end_ts":     endProp,
				}),
				ReadOnly: true,
			},
			call: typed(func(ctx context.Context, args accountWindowArgs) (any, error) {
				start, end, err := tradeledger.ParseWindow(args.Start, args.End)
				if err != nil {
					return nil, err
				}
				events, err := l.AccountEvents(ctx, args.AccountID, start, end)
				return listing(l, events, err)
			}),
		},
		entry{
			Tool: Tool{
				Name:        GetAccountTickerEvents,
				Description: "Lists the events of one ticker in one account, newest first, capped to the result limit.",
				Parameters: object([]string{"account_id", "ticker_symbol"}, map[string]any{
					"account_id":    accountProp,
					"ticker_symbol": tickerProp,
					"start_ts":      startProp,
					"end_ts":        endProp,
				}),
				ReadOnly: true,
			},
			call: typed(func(ctx context.Context, args accountTickerArgs) (any, error) {
				start, end, err := tradeledger.ParseWindow(args.Start, args.End)
				if err != nil {
					return nil, err
				}
				events, err := l.AccountTickerEvents(ctx, args.AccountID, args.Ticker, start, end)
				return listing(l, events, err)
			}),
		},
		entry{
			Tool: Tool{
				Name:        TickerEvents,
				Description: "Lists the events of one ticker across all accounts, newest first, capped to the result limit.",
				Parameters: object([]string{"ticker_symbol"}, map[string]any{
					"ticker_symbol": tickerProp,
					"start_ts":      startProp,
					"end_ts":        endProp,
				}),
				ReadOnly: true,
			},
			call: typed(func(ctx context.Context, args tickerWindowArgs) (any, error) {
				start, end, err := tradeledger.ParseWindow(args.Start, args.End)
				if err != nil {
					return nil, err
				}
				events, err := l.TickerEvents(ctx, args.Ticker, start, end)
				return listing(l, events, err)
			}),
		},
		entry{
			Tool: Tool{
				Name:        RunQuery,
				Description: "Runs a read-only SQL query and returns the rows. Use it only when no other tool answers the question.\n\n" + docs.MustTopic("query"),
				Parameters:  object([]string{"sql"}, map[string]any{"sql": str("A single SELECT statement over portfolio_event_ledger.")}),
				ReadOnly:    true,
			},
			call: typed(func(ctx context.Context, args queryArgs) (any, error) {
				return l.RunQuery(ctx, args.SQL)
			}),
		},
		entry{
			Tool: Tool{
				Name:        GetAccountAnalysisContext,
				Description: "Returns the positions of an account with their anomaly flags, the total market value of its priced positions and the count of priced and unpriced positions.\n\n" + anomalies,
				Parameters:  object([]string{"account_id"}, map[string]any{"account_id": accountProp}),
				ReadOnly:    true,
			},
			call: typed(func(ctx context.Context, args accountArgs) (any, error) {
				return l.AnalysisContext(ctx, args.AccountID)
			}),
		},
		entry{
			Tool: Tool{
				Name:        InsertEvent,
				Description: "Appends one event to the ledger. Only call it when the user explicitly asks to record a trade or a price.\n\n" + timestamps,
				Parameters: object([]string{"account_id", "ticker_symbol", "event_ts", "event_type", "shares", "price_per_share", "currency"}, map[string]any{
					"account_id":      accountProp,
					"ticker_symbol":   tickerProp,
					"event_ts":        str("Instant of the event, RFC 3339 with an explicit offset."),
					"event_type":      str("Event type.", "BUY", "SELL", "PRICE"),
					"shares":          num("Number of shares, 0 for PRICE events."),
					"price_per_share": num("Price per share, strictly positive."),
					"currency":        str("ISO 4217 currency code."),
					"source":          str("Optional origin of the event, defaults to api."),
				}),
			},
			call: typed(func(ctx context.Context, raw tradeledger.RawEvent) (any, error) {
				id, err := l.Insert(ctx, raw)
				if err != nil {
					return nil, err
				}
				return map[string]any{"id": id, "status": "inserted"}, nil
			}),
		},
	)
}
