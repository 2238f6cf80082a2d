package ui

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"enigh/adapters/excel"
	"enigh/internal/dataset"
	"enigh/internal/errors"
	"enigh/internal/integration"
	"enigh/internal/report"
	"enigh/ui/middleware"

	"github.com/gin-gonic/gin"
)

func (s *Server) page(active string, view interface{}) page {
	return page{
		Tabs:   tabs(s.reports.Settings().Year),
		Active: active,
		Year:   s.reports.Settings().Year,
		View:   view,
	}
}

func browseRequest(c *gin.Context) report.BrowseRequest {
	return report.BrowseRequest{
		Year:      c.Query("anio"),
		Base:      c.Query("base"),
		Columns:   c.QueryArray("col"),
		Submitted: c.Query("enviado") != "",
	}
}

func (s *Server) handleExplore(c *gin.Context) {
	req := browseRequest(c)
	view := s.reports.Browse(middleware.Tables(c), req)

	p := s.page("/explorar", view)
	q := url.Values{"anio": {view.Year}, "base": {view.Base}, "enviado": {"1"}}
	for _, col := range view.Selected {
		q.Add("col", col)
	}
	p.Query = template.URL(q.Encode())
	s.render(c, "explorar", p)
}

func (s *Server) handlePrepared(c *gin.Context) {
	s.render(c, "preparados", s.page("/preparados", s.reports.Prepared(middleware.Tables(c))))
}

func (s *Server) handlePCA(c *gin.Context) {
	s.render(c, "pca", s.page("/pca", s.reports.PCA(middleware.Tables(c))))
}

func (s *Server) handleNetwork(c *gin.Context) {
	s.render(c, "redes", s.page("/redes", s.reports.Network(middleware.Tables(c))))
}

func (s *Server) handleCentrality(c *gin.Context) {
	metric, _ := report.ParseMetric(c.Query("metrica"))
	s.render(c, "centralidad", s.page("/centralidad", s.reports.Centrality(middleware.Tables(c), metric)))
}

func (s *Server) handleMaster(c *gin.Context) {
	req := report.MasterRequest{
		Dataset: c.Query("dataset"),
		Kind:    c.Query("grafica"),
	}
	kind, _ := report.ParseChartKind(req.Kind)
	for _, name := range []string{"x", "y"}[:kind.Arity()] {
		req.Columns = append(req.Columns, c.Query(name))
	}
	s.render(c, "maestro", s.page("/maestro", s.reports.Master(middleware.Tables(c), req)))
}

func (s *Server) handleAbout(c *gin.Context) {
	s.render(c, "acerca", s.page("/acerca", s.about))
}

func (s *Server) handleReload(c *gin.Context) {
	s.sessions.Reload(middleware.SessionID(c))
	s.logger.Info().Msg("tables reloaded")

	back := c.PostForm("volver")
	if !strings.HasPrefix(back, "/") || strings.HasPrefix(back, "//") {
		back = "/explorar"
	}
	c.Redirect(http.StatusSeeOther, back)
}

func (s *Server) handleExploreDownload(c *gin.Context) {
	table, name, err := s.reports.Filtered(middleware.Tables(c), browseRequest(c))
	if err != nil {
		s.downloadError(c, err)
		return
	}
	s.sendCSV(c, name, table)
}

func (s *Server) handleMasterCSV(c *gin.Context) {
	table, opt, err := s.reports.MasterTable(middleware.Tables(c), c.Query("dataset"))
	if err != nil {
		s.downloadError(c, err)
		return
	}
	s.sendCSV(c, opt.File, table)
}

func (s *Server) handleMasterXLSX(c *gin.Context) {
	table, opt, err := s.reports.MasterTable(middleware.Tables(c), c.Query("dataset"))
	if err != nil {
		s.downloadError(c, err)
		return
	}

	sheets := []excel.Sheet{{Name: excel.SummarySheet, Table: table}}
	if opt.Key == report.DatasetMaster {
		sheets[0].Name = "maestro"
	}
	if dist, err := integration.DistributionOf(table); err == nil {
		sheets = append(sheets, excel.Sheet{
			Name:  excel.DistributionSheet,
			Table: excel.DistributionTable(s.reports.Settings().Year, dist),
		})
	}

	var buf bytes.Buffer
	if err := excel.WriteWorkbook(&buf, sheets...); err != nil {
		s.downloadError(c, err)
		return
	}
	name := strings.TrimSuffix(opt.File, ".csv") + ".xlsx"
	c.Header("Content-Disposition", attachment(name))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (s *Server) sendCSV(c *gin.Context, name string, table *dataset.Table) {
	var buf bytes.Buffer
	if err := dataset.WriteCSV(&buf, table); err != nil {
		s.downloadError(c, err)
		return
	}
	c.Header("Content-Disposition", attachment(name))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *Server) downloadError(c *gin.Context, err error) {
	switch {
	case errors.HasCode(err, errors.CodeInputMissing), errors.HasCode(err, errors.CodeNotFound):
		c.String(http.StatusNotFound, report.MsgNoMasterFile)
	case errors.HasCode(err, errors.CodeInvalidInput):
		c.String(http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("download failed")
		c.String(http.StatusInternalServerError, "No se pudo generar la descarga.")
	}
}

func attachment(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}
