// Package memory provides the in-memory key space of respkv.
//
// The Store keeps two maps: the data map from key to domain.Value and the
// expiry table from key to absolute deadline. Every key in the expiry table
// is also present in the data map; removing a key removes both entries.
//
// Expiry:
//
//   - Lazy: every read path checks the deadline and reclaims the key first.
//   - Active: ActiveExpire samples the expiry table and reclaims expired keys.
//     The event loop calls it on each tick.
//
// Thread Safety:
//
// None. The store is confined to the single event loop goroutine, which
// gives every command exclusive access and a total order across clients.
package memory
