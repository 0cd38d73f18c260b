package kotapay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
)

// ReportResult is a normalized vendor report payload.
type ReportResult struct {
	RowCount int              `json:"rowCount"`
	Rows     []map[string]any `json:"rows"`
	Raw      any              `json:"raw,omitempty"`
}

// RunReport executes a vendor report for the given type code and date range.
// The vendor reports some failures inside a 200 body; those surface as
// *VendorError carrying the body-level code.
func (c *Client) RunReport(ctx context.Context, reportType, startDate, endDate string) (*ReportResult, error) {
	if !c.config.Enabled {
		return nil, ErrDisabled
	}

	q := url.Values{}
	q.Set("reportType", reportType)
	if startDate != "" {
		q.Set("startDate", startDate)
	}
	if endDate != "" {
		q.Set("endDate", endDate)
	}

	resp, err := c.execute(ctx, http.MethodGet, "/v1/companies/"+c.config.CompanyID+"/reports", nil, q)
	if err != nil {
		return nil, err
	}

	if code, ok := bodyCode(resp.payload); ok && code >= 400 {
		return nil, &VendorError{Status: code, Payload: resp.payload, Raw: resp.raw}
	}

	result := parseReportResponse(resp.payload["response"])
	return &result, nil
}

// FileAcknowledgementReport locates the vendor's file acknowledgement report
// by trying each configured report type code in order. The first code the
// vendor accepts wins. Authorization failures and server errors abort the
// search since they would recur for every candidate; anything else is
// recorded and the next candidate is tried.
func (c *Client) FileAcknowledgementReport(ctx context.Context, startDate, endDate string) (*ReportResult, error) {
	if !c.config.Enabled {
		return nil, ErrDisabled
	}

	var attempted []string
	var lastErr error
	for _, code := range c.config.FileAckReportTypes {
		result, err := c.RunReport(ctx, code, startDate, endDate)
		if err == nil {
			c.logger.Info("file acknowledgement report type resolved", "report_type", code)
			return result, nil
		}
		attempted = append(attempted, code)
		lastErr = err

		var vendorErr *VendorError
		if errors.As(err, &vendorErr) {
			switch vendorErr.Status {
			case http.StatusUnauthorized, http.StatusForbidden, http.StatusInternalServerError:
				return nil, &DiscoveryError{Attempted: attempted, Err: err}
			}
		}

		c.logger.Debug("report type candidate rejected",
			"report_type", code,
			"error", err,
		)
	}

	return nil, &DiscoveryError{Attempted: attempted, Err: lastErr}
}

// bodyCode extracts the vendor's body-level status code when present.
func bodyCode(payload map[string]any) (int, bool) {
	switch v := payload["code"].(type) {
	case float64:
		return int(v), true
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	return 0, false
}

// parseReportResponse normalizes the shapes the report endpoint returns:
// nothing, a bare array of rows, an object carrying rowCount and rows, a
// single record, or any of those JSON-encoded as a string.
func parseReportResponse(v any) ReportResult {
	return parseReportValue(v, true)
}

func parseReportValue(v any, allowRecurse bool) ReportResult {
	switch data := v.(type) {
	case nil:
		return ReportResult{Rows: []map[string]any{}}
	case string:
		if allowRecurse && data != "" {
			var inner any
			if err := json.Unmarshal([]byte(data), &inner); err == nil {
				result := parseReportValue(inner, false)
				result.Raw = data
				return result
			}
		}
		return ReportResult{Rows: []map[string]any{}, Raw: data}
	case []any:
		rows := toRows(data)
		return ReportResult{RowCount: len(rows), Rows: rows, Raw: v}
	case map[string]any:
		if len(data) == 0 {
			return ReportResult{Rows: []map[string]any{}, Raw: v}
		}
		if rawRows, ok := data["rows"]; ok {
			rows := toRows(asSlice(rawRows))
			count := len(rows)
			if n, ok := data["rowCount"].(float64); ok {
				count = int(n)
			}
			return ReportResult{RowCount: count, Rows: rows, Raw: v}
		}
		return ReportResult{RowCount: 1, Rows: []map[string]any{data}, Raw: v}
	default:
		return ReportResult{Rows: []map[string]any{}, Raw: v}
	}
}

func asSlice(v any) []any {
	switch s := v.(type) {
	case nil:
		return nil
	case []any:
		return s
	default:
		return []any{v}
	}
}

// toRows coerces vendor list items into records. Scalar items are wrapped so
// callers always see maps.
func toRows(items []any) []map[string]any {
	rows := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			rows = append(rows, m)
			continue
		}
		rows = append(rows, map[string]any{"value": item})
	}
	return rows
}
