package handler

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/epikoding/giftpool/internal/gift"
	"github.com/gin-gonic/gin"
)

type ExportHandler struct {
	service *gift.Service
}

func NewExportHandler(service *gift.Service) *ExportHandler {
	return &ExportHandler{service: service}
}

func (h *ExportHandler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", "json")

	view, err := h.service.GetSession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		respondError(c, err)
		return
	}

	switch format {
	case "json":
		h.exportJSON(c, view)
	case "csv":
		h.exportCSV(c, view)
	case "md", "markdown":
		h.exportMarkdown(c, view)
	default:
		badRequest(c, "Invalid format. Use json, csv, or md")
	}
}

func (h *ExportHandler) exportJSON(c *gin.Context, view *gift.SessionView) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=session-%s.json", view.SessionID))
	c.JSON(http.StatusOK, view)
}

func (h *ExportHandler) exportCSV(c *gin.Context, view *gift.SessionView) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	writer.Write([]string{"ID", "Name", "Organizer", "Contribution", "Refund", "Net", "Joined"})
	for _, p := range view.Participants {
		writer.Write([]string{
			strconv.FormatInt(p.ID, 10),
			p.Name,
			strconv.FormatBool(p.IsOrganizer),
			p.Contribution.StringFixed(2),
			p.RefundAmount.StringFixed(2),
			p.Contribution.Sub(p.RefundAmount).StringFixed(2),
			p.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		})
	}
	writer.Flush()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=session-%s.csv", view.SessionID))
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

func (h *ExportHandler) exportMarkdown(c *gin.Context, view *gift.SessionView) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", view.GiftName)
	if view.GiftLink != nil {
		fmt.Fprintf(&buf, "**Link:** %s\n\n", *view.GiftLink)
	}
	fmt.Fprintf(&buf, "**Organizer:** %s\n\n", view.OrganizerName)
	fmt.Fprintf(&buf, "**Price:** %s\n\n", view.GiftPrice.StringFixed(2))
	fmt.Fprintf(&buf, "**Collected:** %s (%d%%)\n\n", view.TotalContributed.StringFixed(2), view.Progress)
	status := "Open"
	if view.IsComplete {
		status = "Complete"
	}
	fmt.Fprintf(&buf, "**Status:** %s\n\n", status)

	buf.WriteString("## Participants\n\n")
	buf.WriteString("| Name | Contribution | Refund |\n|---|---|---|\n")
	for _, p := range view.Participants {
		name := p.Name
		if p.IsOrganizer {
			name += " (organizer)"
		}
		fmt.Fprintf(&buf, "| %s | %s | %s |\n", name, p.Contribution.StringFixed(2), p.RefundAmount.StringFixed(2))
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=session-%s.md", view.SessionID))
	c.Data(http.StatusOK, "text/markdown", buf.Bytes())
}
