package main

import (
	"fmt"
	"os"

	cli "github.com/spf13/pflag"

	"voxchat/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", ipc.SocketPath, "Control socket of a running voxchat")
	cli.Parse()

	cmd := ipc.CmdToggle
	if cli.NArg() > 0 {
		cmd = cli.Arg(0)
	}

	if err := ipc.SendCommand(*socket, cmd); err != nil {
		fmt.Println("voxchat not running:", err)
		os.Exit(1)
	}
}
