package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sproutgrid/greenhouse-engine/internal/service"
)

type fakeReportLister struct {
	keys []string
	err  error
}

func (f *fakeReportLister) ListReports(ctx context.Context) ([]string, error) {
	return f.keys, f.err
}

func newTestApp(reports ReportLister) *fiber.App {
	app := fiber.New()
	Register(app, &service.Services{}, nil, reports)
	return app
}

func TestReportsUnavailableWithoutExporter(t *testing.T) {
	app := newTestApp(nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/reports", nil))
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)
}

func TestReportsListsExportedKeys(t *testing.T) {
	app := newTestApp(&fakeReportLister{keys: []string{
		"reports/20260301T120000Z.json",
		"reports/20260301T121500Z.json",
	}})

	resp, err := app.Test(httptest.NewRequest("GET", "/reports", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body struct {
		Reports []string `json:"reports"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []string{
		"reports/20260301T120000Z.json",
		"reports/20260301T121500Z.json",
	}, body.Reports)
}

func TestReportsPropagatesListFailure(t *testing.T) {
	app := newTestApp(&fakeReportLister{err: errors.New("bucket unreachable")})

	resp, err := app.Test(httptest.NewRequest("GET", "/reports", nil))
	require.NoError(t, err)
	assert.Equal(t, 502, resp.StatusCode)
}
