// Package main is the calc example unit. It compiles to WASM
// (GOOS=wasip1 GOARCH=wasm) and is discovered by the scanner as
// calc.wasm; every exported function below becomes a namespace entry
// under the unit's key.
package main

//go:wasmexport add
func add(a, b int64) int64 {
	return a + b
}

//go:wasmexport subtract
func subtract(a, b int64) int64 {
	return a - b
}

//go:wasmexport fib
func fib(n int64) int64 {
	if n < 2 {
		return n
	}
	a, b := int64(0), int64(1)
	for i := int64(2); i <= n; i++ {
		a, b = b, a+b
	}
	return b
}

//go:wasmexport scale
func scale(value float64, factor float64) float64 {
	return value * factor
}

func main() {}
