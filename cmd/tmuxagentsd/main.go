// Command tmuxagentsd is the orchestration daemon's entrypoint: run starts
// the daemon in the foreground, watchdog wraps it with restart supervision,
// and doctor runs pre-flight checks without starting anything (spec.md §4.7,
// §6). Grounded on the teacher's cmd/gt, a thin main.go delegating straight
// into an internal/cmd.Execute.
package main

import "os"

func main() {
	os.Exit(Execute())
}
