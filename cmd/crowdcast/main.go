// Command crowdcast serves NYC transit arrivals and crowding estimates.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	_ "time/tzdata"
)

func main() {
	if err := newCLIApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCLIApp() *cli.App {
	return &cli.App{
		Name:        "crowdcast",
		Usage:       "NYC transit arrivals and crowding estimates",
		Description: "Ingests MTA subway, bus, LIRR and Metro-North GTFS-Realtime feeds and scores crowding per route segment.",
		Flags:       globalFlags(),
		Commands: []*cli.Command{
			serveCommand(),
			inspectCommand(),
			importScheduleCommand(),
		},
	}
}
