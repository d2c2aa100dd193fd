// Package test has helpers for database-backed tests, and tiny assertion
// wrappers used across the repo's test suites.
package test

import (
	"fmt"
	"os"
	"reflect"
	"testing"

	"github.com/docmill/docmill/models/db"
	"github.com/docmill/docmill/setup"
)

func SetUp(t testing.TB) {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		os.Setenv("DATABASE_URL", "postgres://docmill@localhost:5432/docmill_test?sslmode=disable&timezone=UTC")
	}
	if err := setup.DB(setup.DefaultConnection, 10); err != nil {
		t.Fatal(err)
	}
}

// TruncateTables deletes all records from the database, except for the jobs
// registry, which is seeded once per connection and holds only the built-in
// types.
func TruncateTables(t testing.TB) error {
	getTableDelete := func(table string) string {
		return "DELETE FROM " + table
	}
	var name string
	if t == nil {
		name = "TruncateTables"
	} else {
		name = t.Name()
	}
	_, err := db.Conn.Exec(fmt.Sprintf("-- %s\n%s;\n%s;\n%s;\n%s",
		name,
		getTableDelete("archived_jobs"),
		getTableDelete("queued_jobs"),
		getTableDelete("files"),
		getTableDelete("folders"),
	))
	return err
}

// TearDown deletes all records from the database, and marks the test as failed
// if this was unsuccessful.
func TearDown(t testing.TB) {
	t.Helper()
	if db.Connected() {
		if err := TruncateTables(t); err != nil {
			t.Fatal(err)
		}
	}
}

// Assert marks the test as failed if result is false.
func Assert(t testing.TB, result bool, message string) {
	t.Helper()
	if !result {
		t.Fatalf("assertion failed: %s", message)
	}
}

// AssertEquals marks the test as failed if result != expected.
func AssertEquals(t testing.TB, result interface{}, expected interface{}) {
	t.Helper()
	if result != expected {
		t.Fatalf("got %#v, expected %#v", result, expected)
	}
}

// AssertDeepEquals marks the test as failed if result and expected are not
// reflect.DeepEqual.
func AssertDeepEquals(t testing.TB, result interface{}, expected interface{}) {
	t.Helper()
	if !reflect.DeepEqual(result, expected) {
		t.Fatalf("got %#v, expected %#v", result, expected)
	}
}

// AssertError marks the test as failed if err is nil.
func AssertError(t testing.TB, err error, message string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected an error, got nil (%s)", message)
	}
}

// AssertNotError marks the test as failed if err is non-nil.
func AssertNotError(t testing.TB, err error, message string) {
	t.Helper()
	if err != nil {
		if message == "" {
			t.Fatalf("unexpected error: %s", err)
		} else {
			t.Fatalf("%s: unexpected error: %s", message, err)
		}
	}
}

// AssertBetween marks the test as failed if a is not between b and c.
func AssertBetween(t testing.TB, a, b, c int64) {
	t.Helper()
	if a < b || a > c {
		t.Fatalf("%d is not between %d and %d", a, b, c)
	}
}
