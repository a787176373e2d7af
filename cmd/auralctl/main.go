package main

import (
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"aural/internal/ipc"
)

const usage = `usage: auralctl [--socket PATH] COMMAND [ARG]

commands:
  resume          resume listening
  pause           pause listening
  stop            stop listening
  trigger         handle the next utterance without a wake word
  status          show the listening state
  say TEXT        run a command as if it had been spoken
  clear           clear the conversation history
  shutdown        stop the daemon
`

func main() {
	socket := flag.String("socket", ipc.DefaultSocketPath, "control socket path")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd := args[0]
	arg := strings.Join(args[1:], " ")

	reply, err := ipc.SendCommand(*socket, cmd, arg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "aural daemon not reachable:", err)
		os.Exit(1)
	}

	if reply.Status != "ok" {
		fmt.Fprintln(os.Stderr, reply.Detail)
		os.Exit(1)
	}

	if reply.Detail != "" {
		fmt.Println(reply.Detail)
	}
}
