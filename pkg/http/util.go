package http

import (
	"time"

	xutil "SecMaster/pkg/util"

	"github.com/labstack/echo/v4"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int { return xutil.ParseIntDefault(s, def) }

// ParseTime accepts dates, RFC3339 and unix seconds.
func ParseTime(s string) (time.Time, bool) { return xutil.ParseTime(s) }

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time { return xutil.ParseTimeDefault(s, def) }

// QueryTimeRange reads optional from/to query parameters.
func QueryTimeRange(c echo.Context) (TimeRange, error) {
	var tr TimeRange
	if s := c.QueryParam("from"); s != "" {
		t, ok := xutil.ParseTime(s)
		if !ok {
			return tr, BadRequestError("invalid from: " + s)
		}
		tr.From = &t
	}
	if s := c.QueryParam("to"); s != "" {
		t, ok := xutil.ParseTime(s)
		if !ok {
			return tr, BadRequestError("invalid to: " + s)
		}
		tr.To = &t
	}
	if tr.From != nil && tr.To != nil && tr.To.Before(*tr.From) {
		return tr, BadRequestError("to must not be before from")
	}
	return tr, nil
}
