package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"finboard/internal/dataset"
	"finboard/internal/metrics"
	"finboard/internal/services"
)

const taxCSV = "PROJDATE,COUNTRY,CATEGORY,GROSSSALES,NETSALES,GROSSINCOME,TAXDUE,TOTALTAXABLEINCOME,OSD40,NETTAXABLEINCOME\n" +
	"2022-01-10,PH,Retail,100,90,50,5,60,24,36\n" +
	"2022-06-01,SG,Food,200,180,80,8,90,36,54\n" +
	"2023-03-15,PH,Food,300,270,120,12,150,60,90\n"

const tipsCSV = "total_bill;tip;sex;smoker;day;time;size\r\n" +
	"16.99;1.01;Female;No;Sun;Dinner;2\r\n" +
	"10.34;1.66;Male;No;Sun;Dinner;3\r\n" +
	"21.01;3.5;Male;No;Sat;Dinner;3\r\n" +
	"23.68;3.31;Male;No;Thur;Lunch;2\r\n"

func newTestService(t *testing.T) *services.DashboardService {
	t.Helper()
	return serviceFrom(t, taxCSV, tipsCSV)
}

func serviceFrom(t *testing.T, taxData, tipsData string) *services.DashboardService {
	t.Helper()
	taxTable, err := dataset.ReadCSV("CAPSTONEDATA.csv", strings.NewReader(taxData))
	if err != nil {
		t.Fatal(err)
	}
	tax, err := dataset.BindTax(taxTable)
	if err != nil {
		t.Fatal(err)
	}
	tipsTable, err := dataset.ReadCSV("tips.csv", strings.NewReader(tipsData))
	if err != nil {
		t.Fatal(err)
	}
	tips, err := dataset.BindTips(tipsTable)
	if err != nil {
		t.Fatal(err)
	}
	return services.NewDashboardService(tax, tips)
}

func newTestServer(t *testing.T, rateLimit int) (*Server, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	srv := NewServer(Options{Addr: ":0", ExportRateLimit: rateLimit, Metrics: m}, newTestService(t))
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, m
}

func get(srv *Server, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func postForm(srv *Server, target string, form url.Values) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t, 100)

	for path, body := range map[string]string{"/healthz": "ok", "/readyz": "ready"} {
		rr := get(srv, path)
		if rr.Code != http.StatusOK || rr.Body.String() != body {
			t.Fatalf("%s: status=%d body=%q", path, rr.Code, rr.Body.String())
		}
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if rr := get(srv, "/readyz"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz after shutdown: status=%d", rr.Code)
	}
}

func TestOverviewPage(t *testing.T) {
	srv, _ := newTestServer(t, 100)

	rr := get(srv, "/")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{"Total Sales", "₱600.00", "₱250.00", "₱25.00", "/charts/overview-trend.png", "/export/tax.csv"} {
		if !strings.Contains(body, want) {
			t.Fatalf("overview missing %q", want)
		}
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing: %v", rr.Header())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("request id header missing")
	}
	if get(srv, "/nowhere").Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown path")
	}
}

func TestCriteriaSelection(t *testing.T) {
	srv, m := newTestServer(t, 100)

	rr := get(srv, "/?country=SG")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "₱200.00") {
		t.Fatalf("SG only: status=%d", rr.Code)
	}

	tests := []struct {
		name   string
		target string
	}{
		{"empty selection", "/?country="},
		{"inverted range", "/?start=2023-01-01&end=2022-01-01"},
		{"range without rows", "/?start=2021-01-01&end=2021-12-31"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := get(srv, tt.target)
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d", rr.Code)
			}
			if !strings.Contains(rr.Body.String(), "No data available") {
				t.Fatalf("expected no data notice")
			}
		})
	}
	if got := m.NoDataCount("overview"); got != 3 {
		t.Fatalf("no data count = %v, want 3", got)
	}
}

func TestBadParameters(t *testing.T) {
	srv, _ := newTestServer(t, 100)

	for _, target := range []string{
		"/?start=2022-13-45",
		"/tax?end=soon",
		"/sales?year=latest",
		"/tips?column=sex",
		"/tips/data?row_start=3&row_end=1",
		"/tips/data?row_end=99",
		"/tips/data?row_start=x",
	} {
		rr := get(srv, target)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `class="error"`) {
			t.Fatalf("%s: expected error fragment, got %s", target, rr.Body.String())
		}
	}
}

func TestPages(t *testing.T) {
	srv, _ := newTestServer(t, 100)

	tests := []struct {
		target string
		want   []string
	}{
		{"/sales", []string{"Sales for 2023", "₱300.00", "₱270.00", `value="2022"`}},
		{"/sales?year=2022", []string{"Sales for 2022", "₱300.00", "₱135.00"}},
		{"/tax", []string{"₱25.00", "₱300.00", "PH", "₱17.00", "50.00%"}},
		{"/tips", []string{"Average Total Bill", "9.48", "/charts/tips-scatter.png"}},
		{"/tips?day=Sat&column=total_bill", []string{"3.50", "Distribution of total_bill"}},
		{"/tips/data", []string{"Rows 0 to 4 of 4", "Summary statistics", "/export/tips.csv?row_end=4"}},
		{"/tips/data?row_start=1&row_end=2", []string{"Rows 1 to 2 of 4", "10.34"}},
		{"/salary", []string{`name="gross"`, `value="12"`}},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rr := get(srv, tt.target)
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			for _, want := range tt.want {
				if !strings.Contains(rr.Body.String(), want) {
					t.Fatalf("body missing %q:\n%s", want, rr.Body.String())
				}
			}
		})
	}
}

func TestSalary(t *testing.T) {
	srv, _ := newTestServer(t, 100)

	rr := postForm(srv, "/salary", url.Values{"gross": {"1000"}, "rate": {"12"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	for _, want := range []string{"₱1,000.00", "₱120.00", "₱880.00", "-12.00%"} {
		if !strings.Contains(rr.Body.String(), want) {
			t.Fatalf("result missing %q", want)
		}
	}

	tests := []struct {
		name string
		form url.Values
		want string
	}{
		{"zero gross", url.Values{"gross": {"0"}, "rate": {"12"}}, "greater than zero"},
		{"rate above 100", url.Values{"gross": {"1000"}, "rate": {"150"}}, "between 0 and 100"},
		{"not a number", url.Values{"gross": {"lots"}, "rate": {"12"}}, "plain numbers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postForm(srv, "/salary", tt.form)
			if rr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d", rr.Code)
			}
			body := rr.Body.String()
			if !strings.Contains(body, tt.want) {
				t.Fatalf("expected message %q", tt.want)
			}
			if strings.Contains(body, "Net Salary") {
				t.Fatalf("nothing should be computed on invalid input")
			}
		})
	}
}

func TestExport(t *testing.T) {
	srv, m := newTestServer(t, 100)

	rr := get(srv, "/export/tax.csv?country=PH")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	lines := strings.SplitAfter(taxCSV, "\n")
	if want := lines[0] + lines[1] + lines[3]; rr.Body.String() != want {
		t.Fatalf("tax export:\n%q\nwant\n%q", rr.Body.String(), want)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "CAPSTONEDATA_filtered.csv") {
		t.Fatalf("Content-Disposition = %q", cd)
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("downloads must not be cached")
	}

	rr = get(srv, "/export/tips.csv?row_start=1&row_end=3")
	tipLines := strings.SplitAfter(tipsCSV, "\r\n")
	if want := tipLines[0] + tipLines[2] + tipLines[3]; rr.Body.String() != want {
		t.Fatalf("tips export:\n%q\nwant\n%q", rr.Body.String(), want)
	}

	rr = get(srv, "/export/tax.csv?country=")
	if rr.Code != http.StatusOK || rr.Body.String() != lines[0] {
		t.Fatalf("empty selection should export the header only, got %q", rr.Body.String())
	}

	rr = get(srv, "/export/tax.xlsx")
	if rr.Code != http.StatusOK || !bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")) {
		t.Fatalf("xlsx export: status=%d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != services.ContentType(services.FormatXLSX) {
		t.Fatalf("xlsx content type = %q", ct)
	}

	if got := get(srv, "/export/tax.pdf").Code; got != http.StatusBadRequest {
		t.Fatalf("unsupported format: status=%d", got)
	}
	if got := get(srv, "/export/payroll.csv").Code; got != http.StatusNotFound {
		t.Fatalf("unknown dataset: status=%d", got)
	}

	if got := m.ExportCount("tax", "csv"); got != 2 {
		t.Fatalf("tax csv exports = %v, want 2", got)
	}
	if got := m.ExportCount("tips", "csv"); got != 1 {
		t.Fatalf("tips csv exports = %v, want 1", got)
	}
}

func TestCharts(t *testing.T) {
	srv, _ := newTestServer(t, 100)

	for _, name := range []string{"overview-trend", "tax-country", "tax-breakdown", "tips-avg", "tips-distribution"} {
		rr := get(srv, "/charts/"+name+".png")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status=%d body=%s", name, rr.Code, rr.Body.String())
		}
		if !bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")) {
			t.Fatalf("%s: not a PNG", name)
		}
	}

	// No matching rows still renders an image.
	if rr := get(srv, "/charts/sales-trend.png?country="); rr.Code != http.StatusOK {
		t.Fatalf("no data chart: status=%d", rr.Code)
	}
	if rr := get(srv, "/charts/pie.png"); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown chart: status=%d", rr.Code)
	}
	if rr := get(srv, "/charts/tax-country.png?start=bad"); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad chart criteria: status=%d", rr.Code)
	}
}

func TestDownloadRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, 2)

	for i := 0; i < 2; i++ {
		if rr := get(srv, "/export/tax.csv"); rr.Code != http.StatusOK {
			t.Fatalf("request %d: status=%d", i, rr.Code)
		}
	}
	rr := get(srv, "/export/tax.csv")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("Retry-After missing")
	}

	// Pages are not limited.
	if rr := get(srv, "/"); rr.Code != http.StatusOK {
		t.Fatalf("page after limit: status=%d", rr.Code)
	}

	body := get(srv, "/metrics").Body.String()
	for _, want := range []string{"finboard_rate_limited_total 1", "finboard_rate_limit_clients 1"} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestAPI(t *testing.T) {
	srv, _ := newTestServer(t, 100)

	rr := get(srv, "/api/overview")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var doc struct {
		Page     string `json:"page"`
		NoData   bool   `json:"no_data"`
		Criteria struct {
			Start      string   `json:"start"`
			Categories []string `json:"categories"`
		} `json:"criteria"`
		Metrics map[string]struct {
			Value  *float64 `json:"value"`
			Groups []struct {
				Key   string   `json:"key"`
				Value *float64 `json:"value"`
			} `json:"groups"`
		} `json:"metrics"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Page != "overview" || doc.NoData || doc.Criteria.Start != "2022-01-10" {
		t.Fatalf("unexpected document %+v", doc)
	}
	if v := doc.Metrics["total_sales"].Value; v == nil || *v != 600 {
		t.Fatalf("total_sales = %v", v)
	}
	if g := doc.Metrics["income_by_category"].Groups; len(g) != 2 || g[0].Key != "Food" {
		t.Fatalf("income_by_category = %+v", g)
	}

	rr = get(srv, "/api/sales?country=")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"no_data":true`) {
		t.Fatalf("no data: status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"mean_net_sales":{"value":null}`) {
		t.Fatalf("empty mean should be null: %s", rr.Body.String())
	}

	if rr := get(srv, "/api/tips?day=Sun"); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"column":"tip"`) {
		t.Fatalf("tips api: status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr := get(srv, "/api/payroll"); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown page: status=%d", rr.Code)
	}
	rr = get(srv, "/api/tax?start=bad")
	if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), `"error"`) {
		t.Fatalf("bad api request: status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, 100)

	get(srv, "/tax")
	get(srv, "/does-not-exist")

	rr := get(srv, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`finboard_request_duration_seconds_count{route="GET /tax",status="200"} 1`,
		`route="unmatched",status="404"`,
		`finboard_filtered_rows_count{page="tax"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestStaticAssets(t *testing.T) {
	srv, _ := newTestServer(t, 100)

	rr := get(srv, "/static/style.css")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Cache-Control"), "max-age=86400") {
		t.Fatalf("Cache-Control = %q", rr.Header().Get("Cache-Control"))
	}
}

func TestChartCache(t *testing.T) {
	m := metrics.New()
	srv := NewServer(Options{Addr: ":0", ExportRateLimit: 100, ChartCacheSize: 4, ChartCacheTTL: time.Minute, Metrics: m}, newTestService(t))
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	first := get(srv, "/charts/tax-country.png?country=PH&country=SG")
	second := get(srv, "/charts/tax-country.png?country=PH&country=SG")
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("status %d / %d", first.Code, second.Code)
	}
	if !bytes.Equal(first.Body.Bytes(), second.Body.Bytes()) {
		t.Fatal("cached chart differs from the rendered one")
	}
	if hits, misses := m.ChartCacheCount("hit"), m.ChartCacheCount("miss"); hits != 1 || misses != 1 {
		t.Fatalf("hits=%v misses=%v, want 1/1", hits, misses)
	}

	// Rejected criteria are never cached.
	for i := 0; i < 2; i++ {
		if rr := get(srv, "/charts/tax-country.png?start=bad"); rr.Code != http.StatusBadRequest {
			t.Fatalf("bad criteria: status=%d", rr.Code)
		}
	}
	if got := srv.charts.Size(); got != 1 {
		t.Fatalf("cache size = %d, want 1", got)
	}
}

func TestHeaderOnlyTaxDataset(t *testing.T) {
	header := taxCSV[:strings.Index(taxCSV, "\n")+1]
	m := metrics.New()
	srv := NewServer(Options{Addr: ":0", ExportRateLimit: 100, Metrics: m}, serviceFrom(t, header, tipsCSV))
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	for _, path := range []string{"/", "/sales", "/tax", "/?start=2022-01-01&end=2022-12-31"} {
		rr := get(srv, path)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status=%d body=%s", path, rr.Code, rr.Body.String())
		}
		if !strings.Contains(rr.Body.String(), "No data available") {
			t.Fatalf("%s: no-data notice missing", path)
		}
	}

	rr := get(srv, "/api/overview")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"no_data":true`) {
		t.Fatalf("api: status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = get(srv, "/export/tax.csv")
	if rr.Code != http.StatusOK || rr.Body.String() != header {
		t.Fatalf("export: status=%d body=%q", rr.Code, rr.Body.String())
	}

	if rr := get(srv, "/charts/tax-country.png"); rr.Code != http.StatusOK {
		t.Fatalf("chart: status=%d", rr.Code)
	}
	// A malformed date is still the caller's mistake.
	if rr := get(srv, "/tax?start=2022-99-01"); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad date: status=%d", rr.Code)
	}
}
