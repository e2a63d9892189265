package cli

import (
	"fmt"
	"strings"

	"github.com/vbook-dev/vbook/internal/runtimeconfig"
)

type ConfigCommand struct {
	Init ConfigInitCommand `cmd:"" help:"Write a default runtime config file"`
}

type ConfigInitCommand struct {
	Path  string `help:"Config file path (defaults to $XDG_CONFIG_HOME/vbook/config.yaml)"`
	Force bool   `help:"Overwrite an existing config file"`
}

func (c *ConfigInitCommand) Run(ctx *runtimeContext) error {
	path := strings.TrimSpace(c.Path)
	if path == "" {
		var err error
		path, err = runtimeconfig.Path()
		if err != nil {
			return err
		}
	}
	if err := runtimeconfig.Write(path, runtimeconfig.Default(), c.Force); err != nil {
		return err
	}
	_, err := fmt.Fprintf(ctx.Stdout, "wrote runtime config %s\n", path)
	return err
}
