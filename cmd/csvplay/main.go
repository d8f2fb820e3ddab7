// csvplay edits and runs scripted queries over a CSV source.
//
// The CSV text, the query and the saved queries persist between runs in a
// state file, so a session is built up one command at a time:
//
//	csvplay load people.csv
//	csvplay select name
//	csvplay select older "(row) => row.age + 1"
//	csvplay set where "return row.age > 30;"
//	csvplay run
//	csvplay serve
package main

import (
	"fmt"
	"os"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
