package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-retail/internal/app"
	_ "github.com/odyssey-erp/odyssey-retail/internal/testing/guard"
)

func TestWorkerReturnsInTestMode(t *testing.T) {
	require.True(t, app.InTestMode())
	main()
}
