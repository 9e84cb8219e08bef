package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/gocdf/internal/logger"
	"github.com/samcharles93/gocdf/pkg/cdf"
)

type Server struct {
	store *DatasetStore
	log   logger.Logger
}

func NewServer(store *DatasetStore, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{store: store, log: log}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/datasets", s.handleOpenDataset)
	e.GET("/v1/datasets", s.handleListDatasets)
	e.GET("/v1/datasets/:id", s.handleGetDataset)
	e.DELETE("/v1/datasets/:id", s.handleCloseDataset)
	e.GET("/v1/datasets/:id/attributes", s.handleGlobalAttributes)
	e.GET("/v1/datasets/:id/variables", s.handleListVariables)
	e.GET("/v1/datasets/:id/variables/:name", s.handleGetVariable)
	e.GET("/v1/datasets/:id/variables/:name/data", s.handleVariableData)
}

func (s *Server) handleOpenDataset(c *echo.Context) error {
	req, err := decodeJSON[OpenDatasetReq](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	ds, err := s.store.Open(req.Path)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			return writeBadRequest(c, err.Error())
		}
		return writeError(c, http.StatusUnprocessableEntity, "open_error", err.Error(), "path", "")
	}
	return c.JSON(http.StatusOK, datasetResp(ds))
}

func (s *Server) handleListDatasets(c *echo.Context) error {
	list := s.store.List()
	resp := DatasetListResp{Object: "list", Data: make([]DatasetResp, 0, len(list))}
	for _, ds := range list {
		resp.Data = append(resp.Data, datasetResp(ds))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetDataset(c *echo.Context) error {
	ds, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "dataset not found")
	}
	return c.JSON(http.StatusOK, datasetResp(ds))
}

func (s *Server) handleCloseDataset(c *echo.Context) error {
	id := c.Param("id")
	if err := s.store.Close(id); err != nil {
		if errors.Is(err, cdf.ErrNotFound) {
			return writeNotFound(c, "dataset not found")
		}
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}
	return c.JSON(http.StatusOK, DeleteDatasetResp{ID: id, Object: "dataset", Deleted: true})
}

func (s *Server) handleGlobalAttributes(c *echo.Context) error {
	ds, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "dataset not found")
	}
	atts, err := ds.Reader.GlobalAttsGet()
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}

	names := make([]string, 0, len(atts))
	for name := range atts {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := AttributeListResp{Object: "list", Data: make([]AttributeResp, 0, len(names))}
	for _, name := range names {
		entries := atts[name]
		nums := make([]int, 0, len(entries))
		for n := range entries {
			nums = append(nums, n)
		}
		sort.Ints(nums)
		a := AttributeResp{Name: name}
		for _, n := range nums {
			e := entries[n]
			a.Entries = append(a.Entries, AttributeEntryResp{
				Entry:      n,
				DataType:   e.DataType.String(),
				NumStrings: e.NumStrings,
				Value:      e.Value,
			})
		}
		resp.Data = append(resp.Data, a)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListVariables(c *echo.Context) error {
	ds, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "dataset not found")
	}
	info := ds.Reader.Info()
	names := make([]string, 0, len(info.ZVariables)+len(info.RVariables))
	names = append(names, info.ZVariables...)
	names = append(names, info.RVariables...)

	resp := VariableListResp{Object: "list", Data: make([]VariableResp, 0, len(names))}
	for _, name := range names {
		v, err := ds.Reader.VarInq(name)
		if err != nil {
			continue
		}
		resp.Data = append(resp.Data, variableResp(v, nil))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetVariable(c *echo.Context) error {
	ds, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "dataset not found")
	}
	name := c.Param("name")
	v, err := ds.Reader.VarInq(name)
	if err != nil {
		if errors.Is(err, cdf.ErrNotFound) {
			return writeNotFound(c, "variable not found")
		}
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}
	atts, _ := ds.Reader.VarAttsGet(name)
	return c.JSON(http.StatusOK, variableResp(v, atts))
}

func (s *Server) handleVariableData(c *echo.Context) error {
	ds, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "dataset not found")
	}
	name := c.Param("name")

	opts, err := dataOptions(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	data, err := ds.Reader.VarGet(name, opts...)
	if err != nil {
		switch {
		case errors.Is(err, cdf.ErrNotFound):
			return writeNotFound(c, err.Error())
		case errors.Is(err, cdf.ErrChecksum):
			return writeError(c, http.StatusConflict, "checksum_error", err.Error(), "", "")
		case errors.Is(err, cdf.ErrBadSpec):
			return writeBadRequest(c, err.Error())
		default:
			return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
		}
	}

	return c.JSON(http.StatusOK, VariableDataResp{
		Name:            data.Name,
		DataType:        data.DataType.String(),
		Shape:           data.Shape,
		FirstRecord:     data.FirstRecord,
		LastRecord:      data.LastRecord,
		NumRecords:      data.NumRecords,
		PhysicalRecords: data.PhysicalRecords,
		Values:          data.Values,
	})
}

// dataOptions maps first/last and start/end query parameters onto read
// options. Record bounds win over a time window.
func dataOptions(c *echo.Context) ([]cdf.VarOption, error) {
	var opts []cdf.VarOption

	firstStr := c.QueryParam("first")
	lastStr := c.QueryParam("last")
	if firstStr != "" || lastStr != "" {
		first, last := 0, -1
		var err error
		if firstStr != "" {
			if first, err = strconv.Atoi(firstStr); err != nil {
				return nil, newInvalidRequest("first must be an integer")
			}
		}
		if lastStr != "" {
			if last, err = strconv.Atoi(lastStr); err != nil {
				return nil, newInvalidRequest("last must be an integer")
			}
		}
		if lastStr == "" {
			last = int(^uint(0) >> 1)
		}
		opts = append(opts, cdf.WithRecordRange(first, last))
		return opts, nil
	}

	startStr := c.QueryParam("start")
	endStr := c.QueryParam("end")
	if startStr != "" || endStr != "" {
		var start, end any
		if startStr != "" {
			start = startStr
		}
		if endStr != "" {
			end = endStr
		}
		opts = append(opts, cdf.WithTimeRange(start, end))
		if ev := c.QueryParam("epoch_var"); ev != "" {
			opts = append(opts, cdf.WithEpochVar(ev))
		}
	}
	return opts, nil
}

func datasetResp(ds *Dataset) DatasetResp {
	info := ds.Reader.Info()
	return DatasetResp{
		ID:         ds.ID,
		Object:     "dataset",
		Path:       ds.Path,
		OpenedAt:   ds.OpenedAt.Unix(),
		Version:    info.Version,
		Encoding:   info.Encoding.String(),
		Majority:   info.Majority.String(),
		Compressed: info.Compressed,
		Checksum:   info.Checksum,
		ZVariables: info.ZVariables,
		RVariables: info.RVariables,
		Attributes: info.Attributes,
	}
}

func variableResp(v cdf.VarInfo, atts map[string]cdf.Entry) VariableResp {
	kind := "r"
	if v.Z {
		kind = "z"
	}
	resp := VariableResp{
		Name:             v.Name,
		Num:              v.Num,
		Kind:             kind,
		DataType:         v.DataType.String(),
		NumElems:         v.NumElems,
		DimSizes:         v.DimSizes,
		DimVarys:         v.DimVarys,
		RecVary:          v.RecVary,
		MaxRec:           v.MaxRec,
		Compressed:       v.Compressed,
		CompressionLevel: v.CompressionLevel,
		BlockingFactor:   v.BlockingFactor,
		Pad:              v.Pad,
	}
	if v.Sparse != cdf.NoSparse {
		resp.Sparse = v.Sparse.String()
	}
	if len(atts) > 0 {
		resp.Attributes = make(map[string]any, len(atts))
		for name, e := range atts {
			resp.Attributes[name] = e.Value
		}
	}
	return resp
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "", "")
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg, "", "")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}
