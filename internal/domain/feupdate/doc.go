// Package feupdate defines the model update documents pushed to front-end
// clients and the scoped bus that delivers them.
//
// A ModelUpdate is an ordered batch of items. It marshals to a JSON array of
// single-key objects keyed by each item's update type, which the client
// applies in array order:
//
//	[{"ptydata": {...}}, {"screenstatusindicator": {...}}]
//
// Every item sent on the bus must be self-sufficient. Snapshot items carry
// full state; ptydata carries an absolute ptypos so a client that missed a
// dropped update can detect the gap and resynchronize.
package feupdate
