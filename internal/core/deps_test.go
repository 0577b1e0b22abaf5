package core_test

import (
	"testing"

	"stockledger/testutil"
)

func TestCoreDoesNotImportSinks(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AnyOf(testutil.SinkImportForbidden, testutil.DriverImportForbidden), "the store reaches sinks only through observers")
}
