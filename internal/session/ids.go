package session

import (
	"fmt"
	"time"

	"go.jetify.com/typeid"
)

// Run ids tag every log line of one test or install so concurrent runs on
// different projects can be told apart. They are also shown in reports.
const (
	runIDPrefix     = "run"
	installIDPrefix = "inst"
)

var generateTypeID = func(prefix string) (string, error) {
	id, err := typeid.WithPrefix(prefix)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func newRunID() string     { return newID(runIDPrefix) }
func newInstallID() string { return newID(installIDPrefix) }

// newID falls back to a timestamp id when typeid generation fails.
func newID(prefix string) string {
	if id, err := generateTypeID(prefix); err == nil && id != "" {
		return id
	}
	return fmt.Sprintf("%s-%d", prefix, time.Now().UTC().UnixNano())
}
