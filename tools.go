//go:build tools

// Package tools tracks the tool dependencies run through go generate.
package tools

import (
	_ "go.uber.org/mock/mockgen"
)
