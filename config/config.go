// Package config reads process configuration from the environment.
package config

import (
	"net/http"
	"os"
	"strconv"
)

const Version = "0.4"

// GetInt loads the environment variable varName, converts it to an integer,
// and returns that integer or an error.
func GetInt(varName string) (int, error) {
	return strconv.Atoi(os.Getenv(varName))
}

// GetIntDefault loads the environment variable varName as an integer,
// falling back to def when the variable is unset or unparseable.
func GetIntDefault(varName string, def int) int {
	i, err := GetInt(varName)
	if err != nil {
		return def
	}
	return i
}

// SetMaxIdleConnsPerHost sets the MaxIdleConnsPerHost value for the default
// HTTP transport. If you are using a custom transport, calling this function
// won't change anything.
func SetMaxIdleConnsPerHost(maxConns int) {
	http.DefaultTransport.(*http.Transport).MaxIdleConnsPerHost = maxConns
}
