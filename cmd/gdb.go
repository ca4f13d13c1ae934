package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/featsource/internal/feature"
	"github.com/sells-group/featsource/internal/gdb"
	"github.com/sells-group/featsource/internal/layer"
)

var (
	gdbParent   string
	gdbGeometry string
	gdbFields   []string
)

var gdbCmd = &cobra.Command{
	Use:   "gdb",
	Short: "Create geodatabases and their containers",
}

var gdbInitCmd = &cobra.Command{
	Use:   "init <path.gdb>",
	Short: "Create an empty geodatabase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := gdb.Create(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", args[0])
		return nil
	},
}

var gdbDatasetCmd = &cobra.Command{
	Use:   "dataset <path.gdb> <name>",
	Short: "Create a feature dataset",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := gdb.Open(cmd.Context(), args[0], true)
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck

		p, err := s.CreateFeatureDataset(cmd.Context(), gdbParent, args[1])
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", p)
		return nil
	},
}

var gdbClassCmd = &cobra.Command{
	Use:   "class <path.gdb> <name>",
	Short: "Create a feature class, or a table with --geometry none",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, ok := feature.ParseGeomType(gdbGeometry)
		if !ok {
			return eris.Errorf("unknown geometry type %q", gdbGeometry)
		}
		fields, err := parseFields(gdbFields)
		if err != nil {
			return err
		}

		s, err := gdb.Open(cmd.Context(), args[0], true)
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck

		var p string
		if g == feature.GeomNone {
			p, err = s.CreateTable(cmd.Context(), gdbParent, args[1], fields)
		} else {
			p, err = s.CreateFeatureClass(cmd.Context(), gdbParent, args[1], g, fields)
		}
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", p)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{gdbDatasetCmd, gdbClassCmd} {
		c.Flags().StringVar(&gdbParent, "parent", layer.Root, "parent feature dataset path")
	}
	gdbClassCmd.Flags().StringVar(&gdbGeometry, "geometry", "point", "geometry type, or none for a table")
	gdbClassCmd.Flags().StringSliceVar(&gdbFields, "field", nil, "field as name:type[:width][:notnull], repeatable")
	gdbCmd.AddCommand(gdbInitCmd, gdbDatasetCmd, gdbClassCmd)
	rootCmd.AddCommand(gdbCmd)
}

// parseFields parses name:type[:width][:notnull] specs.
func parseFields(specs []string) ([]feature.FieldDefn, error) {
	out := make([]feature.FieldDefn, 0, len(specs))
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) < 2 || parts[0] == "" {
			return nil, eris.Errorf("field %q: want name:type", spec)
		}
		fd := feature.FieldDefn{Name: parts[0], Type: feature.FieldType(strings.ToLower(parts[1])), Nullable: true}
		if !fd.Type.Valid() {
			return nil, eris.Errorf("field %q: unknown type %q", spec, parts[1])
		}
		for _, opt := range parts[2:] {
			if opt == "notnull" {
				fd.Nullable = false
				continue
			}
			w, err := strconv.Atoi(opt)
			if err != nil {
				return nil, eris.Errorf("field %q: bad option %q", spec, opt)
			}
			fd.Width = w
		}
		out = append(out, fd)
	}
	return out, nil
}
