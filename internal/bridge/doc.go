// Package bridge converts source units held by a caller into a notional
// amount of the target unit at a fixed rate.
//
// A conversion pulls the source units into the bridge's custody account
// through the ledger, multiplies by the rate and appends a record to the
// audit log. The three steps run inside one store transaction and under
// the bridge's guard, so a conversion either happens completely or not at
// all, and never overlaps another one.
package bridge
