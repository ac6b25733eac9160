// Fathom - Insight fusion and budget recommendations over upstream signals.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

// fathomctl is the operator CLI: one-off insight reports, upstream CSV
// imports and advisory rule management against the configured repository.
package main

func main() {
	Execute()
}
