package config

import (
	"os"
	"testing"

	"github.com/docmill/docmill/test"
)

func TestGetInt(t *testing.T) {
	err := os.Setenv("CONFIG_TEST_INT_VAR", "5")
	test.AssertNotError(t, err, "setting env var")
	defer os.Unsetenv("CONFIG_TEST_INT_VAR")
	i, err := GetInt("CONFIG_TEST_INT_VAR")
	test.AssertNotError(t, err, "getting env var")
	test.AssertEquals(t, i, 5)
}

func TestGetIntError(t *testing.T) {
	err := os.Setenv("CONFIG_TEST_INT_VAR", "bad")
	test.AssertNotError(t, err, "setting env var")
	defer os.Unsetenv("CONFIG_TEST_INT_VAR")
	_, err = GetInt("CONFIG_TEST_INT_VAR")
	test.AssertError(t, err, "getting bad env var")
}

func TestGetIntDefault(t *testing.T) {
	os.Unsetenv("CONFIG_TEST_INT_VAR")
	test.AssertEquals(t, GetIntDefault("CONFIG_TEST_INT_VAR", 42), 42)
	err := os.Setenv("CONFIG_TEST_INT_VAR", "7")
	test.AssertNotError(t, err, "setting env var")
	defer os.Unsetenv("CONFIG_TEST_INT_VAR")
	test.AssertEquals(t, GetIntDefault("CONFIG_TEST_INT_VAR", 42), 7)
}
