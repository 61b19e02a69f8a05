package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/achilleasa/rtdenoise/scene"
	"github.com/achilleasa/rtdenoise/scene/reader"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// Display information about a wavefront scene.
func ShowSceneInfo(ctx *cli.Context) error {
	setupLogging(ctx, nil)

	if ctx.NArg() != 1 {
		return errors.New("missing scene file argument")
	}

	sceneFile := ctx.Args().First()
	if !strings.HasSuffix(sceneFile, ".obj") {
		return errors.New("only wavefront scene files with a .obj extension are supported")
	}

	sc, err := reader.ReadFile(sceneFile)
	if err != nil {
		return err
	}

	logger.Noticef("scene information:\n%s", sceneStats(sc))
	return nil
}

func sceneStats(sc *scene.Scene) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Item", "Mesh", "Vertices", "Triangles", "Material"})

	var vertices, triangles int
	for _, item := range sc.Items {
		mesh := item.Geometry
		vertices += len(mesh.Vertices)
		triangles += len(mesh.Indices) / 3
		table.Append([]string{
			item.Name,
			mesh.Name,
			fmt.Sprintf("%d", len(mesh.Vertices)),
			fmt.Sprintf("%d", len(mesh.Indices)/3),
			sc.Materials[item.MaterialIndex].Name,
		})
	}
	table.SetFooter([]string{fmt.Sprintf("%d items", len(sc.Items)), fmt.Sprintf("%d meshes", len(sc.Meshes)), fmt.Sprintf("%d", vertices), fmt.Sprintf("%d", triangles), fmt.Sprintf("%d materials", len(sc.Materials))})
	table.Render()
	return buf.String()
}
