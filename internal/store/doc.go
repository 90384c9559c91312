// Package store provides SQLite-backed durable storage for campaign state.
//
// Three tables back the bot:
//   - info: scalar settings (name -> val), e.g. the lastrun timestamp
//   - campaign: one aggregate row per campaign reference, overwritten
//     wholesale on every successful fetch
//   - donors: append-only donation records, deduplicated on donation_id
//
// # Critical Patterns
//
// Donor inserts use INSERT ... ON CONFLICT(donation_id) DO NOTHING, so a
// record observed by many cycles is stored at most once and a failed cycle
// can safely retry its inserts on the next tick.
//
// All donor reads order by donation_id ASC so scans are deterministic and
// match the source's chronological order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
