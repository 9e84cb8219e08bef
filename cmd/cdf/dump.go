package main

import (
	"context"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/gocdf/internal/logger"
	"github.com/samcharles93/gocdf/pkg/cdf"
	"github.com/samcharles93/gocdf/pkg/epochs"
)

type dumpFile struct {
	Path       string                 `json:"path"`
	Version    string                 `json:"version"`
	Encoding   string                 `json:"encoding"`
	Majority   string                 `json:"majority"`
	Compressed bool                   `json:"compressed"`
	Checksum   bool                   `json:"checksum"`
	GlobalAtts map[string]map[int]any `json:"global_attributes,omitempty"`
	Variables  []dumpVariable         `json:"variables"`
}

type dumpVariable struct {
	Name            string         `json:"name"`
	DataType        string         `json:"data_type"`
	NumElems        int            `json:"num_elems"`
	Shape           []int          `json:"shape,omitempty"`
	RecVary         bool           `json:"rec_vary"`
	Sparse          string         `json:"sparse,omitempty"`
	Compressed      bool           `json:"compressed,omitempty"`
	FirstRecord     int            `json:"first_record"`
	LastRecord      int            `json:"last_record"`
	NumRecords      int            `json:"num_records"`
	PhysicalRecords []int          `json:"physical_records,omitempty"`
	Attributes      map[string]any `json:"attributes,omitempty"`
	Values          any            `json:"values,omitempty"`
	Error           string         `json:"error,omitempty"`
}

func dumpCmd() *cli.Command {
	var (
		filePath  string
		varNames  []string
		first     int64
		last      int64
		timeStart string
		timeEnd   string
		epochVar  string
		limit     int64
		pretty    bool
		metaOnly  bool
	)

	return &cli.Command{
		Name:  "dump",
		Usage: "Dump a CDF file as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "path to .cdf file",
				Destination: &filePath,
				Required:    true,
			},
			&cli.StringSliceFlag{Name: "var", Usage: "variable to dump (repeatable, default all)", Destination: &varNames},
			&cli.Int64Flag{Name: "first", Usage: "first record (0-based)", Value: -1, Destination: &first},
			&cli.Int64Flag{Name: "last", Usage: "last record (inclusive)", Value: -1, Destination: &last},
			&cli.StringFlag{Name: "time-start", Usage: "window start (ISO 8601 or legacy encoding)", Destination: &timeStart},
			&cli.StringFlag{Name: "time-end", Usage: "window end (ISO 8601 or legacy encoding)", Destination: &timeEnd},
			&cli.StringFlag{Name: "epoch-var", Usage: "epoch variable for --time-start/--time-end (default DEPEND_0)", Destination: &epochVar},
			&cli.Int64Flag{Name: "limit", Usage: "max records per variable (0 = no limit)", Destination: &limit},
			&cli.BoolFlag{Name: "pretty", Usage: "indent JSON output", Destination: &pretty},
			&cli.BoolFlag{Name: "meta-only", Usage: "skip variable data", Destination: &metaOnly},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			applyDumpConfig(c, LoadConfig(), &pretty, &limit)

			f, err := cdf.Open(filePath, cdf.WithLogger(log))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open cdf: %v", err), 1)
			}
			defer func() { _ = f.Close() }()

			info := f.Info()
			out := dumpFile{
				Path:       filePath,
				Version:    info.Version,
				Encoding:   info.Encoding.String(),
				Majority:   info.Majority.String(),
				Compressed: info.Compressed,
				Checksum:   info.Checksum,
			}

			if atts, err := f.GlobalAttsGet(); err == nil && len(atts) > 0 {
				out.GlobalAtts = make(map[string]map[int]any, len(atts))
				for name, entries := range atts {
					m := make(map[int]any, len(entries))
					for n, e := range entries {
						m[n] = e.Value
					}
					out.GlobalAtts[name] = m
				}
			}

			names := varNames
			if len(names) == 0 {
				names = append(names, info.ZVariables...)
				names = append(names, info.RVariables...)
			}

			for _, name := range names {
				out.Variables = append(out.Variables,
					dumpVar(f, name, metaOnly, first, last, timeStart, timeEnd, epochVar, limit))
			}

			enc := json.NewEncoder(os.Stdout)
			if pretty {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(out)
		},
	}
}

func dumpVar(f *cdf.Reader, name string, metaOnly bool,
	first, last int64, timeStart, timeEnd, epochVar string, limit int64,
) dumpVariable {
	dv := dumpVariable{Name: name}

	v, err := f.VarInq(name)
	if err != nil {
		dv.Error = err.Error()
		return dv
	}
	dv.DataType = v.DataType.String()
	dv.NumElems = v.NumElems
	dv.RecVary = v.RecVary
	dv.Compressed = v.Compressed
	if v.Sparse != cdf.NoSparse {
		dv.Sparse = v.Sparse.String()
	}

	if atts, err := f.VarAttsGet(name); err == nil && len(atts) > 0 {
		dv.Attributes = make(map[string]any, len(atts))
		for an, e := range atts {
			dv.Attributes[an] = e.Value
		}
	}
	if metaOnly {
		return dv
	}

	var opts []cdf.VarOption
	switch {
	case first >= 0 || last >= 0:
		lo, hi := int(first), int(last)
		if lo < 0 {
			lo = 0
		}
		if hi < 0 {
			hi = v.MaxRec
		}
		opts = append(opts, cdf.WithRecordRange(lo, hi))
	case timeStart != "" || timeEnd != "":
		var start, end any
		if timeStart != "" {
			start = timeStart
		}
		if timeEnd != "" {
			end = timeEnd
		}
		opts = append(opts, cdf.WithTimeRange(start, end))
		if epochVar != "" {
			opts = append(opts, cdf.WithEpochVar(epochVar))
		}
	}

	data, err := f.VarGet(name, opts...)
	if err != nil {
		dv.Error = err.Error()
		return dv
	}
	dv.Shape = data.Shape
	dv.FirstRecord = data.FirstRecord
	dv.LastRecord = data.LastRecord
	dv.NumRecords = data.NumRecords
	dv.PhysicalRecords = data.PhysicalRecords
	dv.Values = data.Values
	if limit > 0 && int64(data.NumRecords) > limit {
		dv.Values = truncateRecords(data, int(limit))
		dv.NumRecords = int(limit)
		dv.LastRecord = data.FirstRecord + int(limit) - 1
	}
	return dv
}

// truncateRecords slices the decoded value slice down to the first n
// records.
func truncateRecords(data *cdf.VarData, n int) any {
	perRec := 1
	for _, d := range data.Shape {
		perRec *= d
	}
	keep := n * perRec
	switch vals := data.Values.(type) {
	case []int8:
		return vals[:keep]
	case []int16:
		return vals[:keep]
	case []int32:
		return vals[:keep]
	case []int64:
		return vals[:keep]
	case []uint8:
		return vals[:keep]
	case []uint16:
		return vals[:keep]
	case []uint32:
		return vals[:keep]
	case []float32:
		return vals[:keep]
	case []float64:
		return vals[:keep]
	case []string:
		return vals[:keep]
	case []epochs.Epoch:
		return vals[:keep]
	case []epochs.Epoch16:
		return vals[:keep]
	case []epochs.TT2000:
		return vals[:keep]
	default:
		return vals
	}
}
