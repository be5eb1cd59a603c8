// Package store persists what agents report to the collector using SQLite.
//
// SQLiteStore satisfies collector.Handler, so a collector started with a
// store path writes every accepted request here:
//
//   - agents: the latest AgentInfo per agent id and start time
//   - api_metadata, sql_metadata, string_metadata: the per-process id
//     dictionaries agents use to shorten their traces
//
// Writes are upserts. The collector acknowledges a request only after the
// write succeeds, so agent redelivery after a lost acknowledgement lands on
// the same row.
//
// # Lookups
//
// GetAgent, ListAgents, LookupAPI, LookupSQL and LookupString read back the
// stored data. A missing entry yields ErrNotFound. Ids are scoped to an
// Agent (id plus start time): a restarted agent starts a fresh dictionary.
package store
