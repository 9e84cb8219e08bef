package api

import (
	"io"

	json "github.com/goccy/go-json"
)

type OpenDatasetReq struct {
	Path string `json:"path"`
}

type DatasetResp struct {
	ID         string   `json:"id"`
	Object     string   `json:"object"`
	Path       string   `json:"path"`
	OpenedAt   int64    `json:"opened_at"`
	Version    string   `json:"version"`
	Encoding   string   `json:"encoding"`
	Majority   string   `json:"majority"`
	Compressed bool     `json:"compressed"`
	Checksum   bool     `json:"checksum"`
	ZVariables []string `json:"z_variables"`
	RVariables []string `json:"r_variables"`
	Attributes []string `json:"attributes"`
}

type DatasetListResp struct {
	Object string        `json:"object"`
	Data   []DatasetResp `json:"data"`
}

type DeleteDatasetResp struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type VariableResp struct {
	Name             string         `json:"name"`
	Num              int            `json:"num"`
	Kind             string         `json:"kind"`
	DataType         string         `json:"data_type"`
	NumElems         int            `json:"num_elems"`
	DimSizes         []int          `json:"dim_sizes,omitempty"`
	DimVarys         []bool         `json:"dim_varys,omitempty"`
	RecVary          bool           `json:"rec_vary"`
	MaxRec           int            `json:"max_rec"`
	Sparse           string         `json:"sparse,omitempty"`
	Compressed       bool           `json:"compressed,omitempty"`
	CompressionLevel int            `json:"compression_level,omitempty"`
	BlockingFactor   int            `json:"blocking_factor,omitempty"`
	Pad              any            `json:"pad,omitempty"`
	Attributes       map[string]any `json:"attributes,omitempty"`
}

type VariableListResp struct {
	Object string         `json:"object"`
	Data   []VariableResp `json:"data"`
}

type VariableDataResp struct {
	Name            string `json:"name"`
	DataType        string `json:"data_type"`
	Shape           []int  `json:"shape,omitempty"`
	FirstRecord     int    `json:"first_record"`
	LastRecord      int    `json:"last_record"`
	NumRecords      int    `json:"num_records"`
	PhysicalRecords []int  `json:"physical_records,omitempty"`
	Values          any    `json:"values"`
}

type AttributeEntryResp struct {
	Entry      int    `json:"entry"`
	DataType   string `json:"data_type"`
	NumStrings int    `json:"num_strings,omitempty"`
	Value      any    `json:"value"`
}

type AttributeResp struct {
	Name    string               `json:"name"`
	Entries []AttributeEntryResp `json:"entries"`
}

type AttributeListResp struct {
	Object string          `json:"object"`
	Data   []AttributeResp `json:"data"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
