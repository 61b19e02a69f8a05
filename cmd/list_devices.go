package cmd

import (
	"bytes"
	"fmt"

	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// List available software adapters.
func ListDevices(ctx *cli.Context) error {
	setupLogging(ctx, nil)

	adapters := device.Adapters()
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"#", "Name", "Type", "Workers", "Validation layer"})
	for idx, a := range adapters {
		table.Append([]string{
			fmt.Sprintf("%02d", idx),
			a.Name,
			a.Type.String(),
			fmt.Sprintf("%d", a.Workers),
			fmt.Sprintf("%t", a.DebugLayer),
		})
	}
	table.Render()

	logger.Noticef("system provides %d adapter(s)\n%s", len(adapters), buf.String())
	return nil
}
