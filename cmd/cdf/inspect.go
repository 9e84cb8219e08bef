package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/gocdf/internal/logger"
	"github.com/samcharles93/gocdf/pkg/cdf"
)

func inspectCmd() *cli.Command {
	var (
		filePath  string
		showAll   bool
		showVars  bool
		showAttrs bool
		varFilter string
		varLimit  int
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect the contents of a CDF file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "path to .cdf file",
				Destination: &filePath,
				Required:    true,
			},
			&cli.BoolFlag{Name: "all", Usage: "show variables and attributes in full", Destination: &showAll},
			&cli.BoolFlag{Name: "vars", Usage: "list variables", Destination: &showVars},
			&cli.BoolFlag{Name: "attrs", Usage: "list attributes and entries", Destination: &showAttrs},
			&cli.StringFlag{Name: "var-filter", Usage: "substring filter for variable listing", Destination: &varFilter},
			&cli.IntFlag{Name: "vars-limit", Usage: "limit variable listing (0 = no limit)", Value: 50, Destination: &varLimit},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)

			if showAll {
				showVars = true
				showAttrs = true
				if varLimit == 50 {
					varLimit = 0
				}
			}

			stat, err := os.Stat(filePath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: stat %q: %v", filePath, err), 1)
			}
			if stat.IsDir() {
				return cli.Exit("error: cdf inspect expects a file, not a directory", 1)
			}

			f, err := cdf.Open(filePath, cdf.WithLogger(log))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open cdf: %v", err), 1)
			}
			defer func() { _ = f.Close() }()

			info := f.Info()
			fmt.Printf("CDF Inspect: %s\n", filePath)
			fmt.Printf("File: %s (%s)\n", filepath.Base(filePath), formatBytes(uint64(stat.Size())))
			printFileInfo(info)

			if showVars {
				printVariables(f, info, varFilter, varLimit)
			}
			if showAttrs {
				printAttributes(f, info)
			}
			return nil
		},
	}
}

func printFileInfo(info cdf.Info) {
	section("File")
	row("version", info.Version)
	row("encoding", info.Encoding.String())
	row("majority", info.Majority.String())
	row("compressed", fmt.Sprintf("%v", info.Compressed))
	row("checksum", fmt.Sprintf("%v", info.Checksum))
	rowInt("leap_table", int(info.LeapTable))
	rowInt("z_variables", len(info.ZVariables))
	rowInt("r_variables", len(info.RVariables))
	rowInt("attributes", len(info.Attributes))
}

func printVariables(f *cdf.Reader, info cdf.Info, filter string, limit int) {
	section("Variables")
	names := make([]string, 0, len(info.ZVariables)+len(info.RVariables))
	names = append(names, info.ZVariables...)
	names = append(names, info.RVariables...)
	if len(names) == 0 {
		fmt.Println("(no variables)")
		return
	}

	printed := 0
	for _, name := range names {
		if filter != "" && !strings.Contains(name, filter) {
			continue
		}
		v, err := f.VarInq(name)
		if err != nil {
			fmt.Printf("%s  (inquire error: %v)\n", name, err)
			continue
		}
		kind := "r"
		if v.Z {
			kind = "z"
		}
		line := fmt.Sprintf("%s  kind=%s type=%s dims=%s records=%d", v.Name, kind, v.DataType, formatDims(v.DimSizes), v.MaxRec+1)
		if !v.RecVary {
			line += " novary"
		}
		if v.Sparse != cdf.NoSparse {
			line += fmt.Sprintf(" sparse=%s", v.Sparse)
		}
		if v.Compressed {
			line += fmt.Sprintf(" gzip=%d", v.CompressionLevel)
		}
		fmt.Println(line)
		printed++
		if limit > 0 && printed >= limit {
			break
		}
	}
	if limit > 0 && printed < len(names) {
		fmt.Printf("... (%d shown of %d)\n", printed, len(names))
	}
}

func printAttributes(f *cdf.Reader, info cdf.Info) {
	section("Global Attributes")
	atts, err := f.GlobalAttsGet()
	if err != nil {
		fmt.Printf("(attribute read error: %v)\n", err)
		return
	}
	if len(atts) == 0 {
		fmt.Println("(none)")
	}
	names := make([]string, 0, len(atts))
	for name := range atts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		entries := atts[name]
		nums := make([]int, 0, len(entries))
		for n := range entries {
			nums = append(nums, n)
		}
		sort.Ints(nums)
		for _, n := range nums {
			e := entries[n]
			fmt.Printf("%-24s [%d] %s = %v\n", name, n, e.DataType, e.Value)
		}
	}

	section("Variable Attributes")
	varNames := make([]string, 0, len(info.ZVariables)+len(info.RVariables))
	varNames = append(varNames, info.ZVariables...)
	varNames = append(varNames, info.RVariables...)
	for _, vn := range varNames {
		va, err := f.VarAttsGet(vn)
		if err != nil || len(va) == 0 {
			continue
		}
		aNames := make([]string, 0, len(va))
		for name := range va {
			aNames = append(aNames, name)
		}
		sort.Strings(aNames)
		for _, name := range aNames {
			e := va[name]
			fmt.Printf("%-24s %s = %v\n", vn, name, e.Value)
		}
	}
}

func section(title string) {
	line := strings.Repeat("-", len(title)+8)
	fmt.Printf("\n%s\n--- %s ---\n%s\n", line, title, line)
}

func row(label, value string) {
	if value == "" {
		return
	}
	fmt.Printf("%-24s %s\n", label+":", value)
}

func rowInt(label string, v int) {
	if v == 0 {
		return
	}
	row(label, fmt.Sprintf("%d", v))
}

func formatDims(dims []int) string {
	if len(dims) == 0 {
		return "[]"
	}
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func formatBytes(b uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.2f GiB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.2f MiB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.2f KiB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
