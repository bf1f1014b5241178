// Package engine provides the core of the slothlet module-aggregation
// runtime: the namespace tree, the merge/flatten rules that decide how a
// mounted directory maps onto namespace keys, and the lazy materializer
// that defers unit loading until first access with single-flight
// semantics. Discovery and unit loading are delegated to collaborators
// implementing the Scanner and UnitLoader interfaces.
package engine
