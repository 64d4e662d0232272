package main

import (
	"testing"

	_ "github.com/age-b2b/backoffice/internal/testing/guard"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	main()
}
