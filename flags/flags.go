package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

const EnvVarPrefix = "REPORTSMITH"

var (
	Events = &cli.StringFlag{
		Name:     "events",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "EVENTS"),
		Usage:    "Path to the newline-delimited JSON event stream ('-' reads stdin)",
	}
	ResultsDir = &cli.StringFlag{
		Name:    "results-dir",
		Value:   "report-results",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RESULTS_DIR"),
		Usage:   "Directory the report sink writes result entities into",
	}
	Settings = &cli.StringFlag{
		Name:    "settings",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SETTINGS"),
		Usage:   "Path to reporter settings file (eg. 'reportsmith.yaml')",
	}
)

var requiredFlags = []cli.Flag{
	Events,
}

var optionalFlags = []cli.Flag{
	ResultsDir,
	Settings,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
