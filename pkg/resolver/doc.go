// Package resolver loads code units into unit descriptors. Starlark
// units go through a sandboxed evaluator that resolves their static
// load() imports itself, detecting cycles with a per-load visited set.
// WASM units go through the native isolation mechanism (wazero), for
// which the resolver is only a thin adapting wrapper.
package resolver
