package database

import (
	"os"
	"testing"
)

func testMongoURI(t *testing.T) string {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set, skipping mongo integration test")
	}
	return uri
}
