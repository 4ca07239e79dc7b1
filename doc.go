// Package tradeledger derives holdings, cost basis and data-quality signals
// from an append-only ledger of trade and price events.
//
// The ledger is a single table of immutable events (BUY, SELL and PRICE) per
// account and ticker. Nothing derived is ever stored: every read fetches the
// events it needs and recomputes positions from them, so a read always agrees
// with the latest committed events.
//
// The package is organised around:
//   - Event and Filter: the ledger row and the selection used to read it.
//   - Aggregate and Analyze: the stateless engine turning events into
//     Positions, AnalysisContexts and anomaly flags.
//   - Ledger: the query surface and ingestion gateway built on top of a Store.
//     Every tool the chat agent can call maps to one Ledger method.
//   - CheckReadOnly: the guard restricting raw SQL to a single SELECT on the
//     ledger table.
//
// Store implementations live in the store package, the conversational loop in
// the agent package.
package tradeledger
