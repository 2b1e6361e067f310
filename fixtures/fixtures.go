// Package fixtures holds helpers shared by the tests of several packages.
package fixtures

import (
	"fmt"
	"io/ioutil"
	"os"

	"github.com/bitmark-inc/logger"
)

var dir string

// SetupTestLogger starts the logger writing to a scratch directory. Only
// critical messages are kept so test output stays quiet.
func SetupTestLogger(category string) {
	var err error
	dir, err = ioutil.TempDir("", "assetdb-log-")
	if err != nil {
		panic(fmt.Sprintf("cannot make log directory: %s", err))
	}
	logging := logger.Configuration{
		Directory: dir,
		File:      fmt.Sprintf("%s.log", category),
		Size:      1048576,
		Count:     10,
		Console:   false,
		Levels: map[string]string{
			logger.DefaultTag: "critical",
		},
	}
	if err := logger.Initialise(logging); err != nil {
		panic(fmt.Sprintf("logger initialization failed: %s", err))
	}
}

// TeardownTestLogger stops the logger and removes its files.
func TeardownTestLogger() {
	logger.Finalise()
	err := os.RemoveAll(dir)
	if nil != err {
		fmt.Println("remove dir with error: ", err)
	}
}
