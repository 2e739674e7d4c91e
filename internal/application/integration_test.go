package application

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
)

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

// TestIntegrationFlow drives the bundled dataset the way the cascading
// region selector does: provinces, then children level by level.
func TestIntegrationFlow(t *testing.T) {
	app, err := New(baseTestConfig(t, "data/regions.json"), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	base := startApp(t, app)

	if status := getJSON(t, base+"/api/health", nil); status != http.StatusOK {
		t.Fatalf("expected 200 from health, got %d", status)
	}

	var provinces []struct {
		Code string `json:"code"`
		Name string `json:"name"`
	}
	if status := getJSON(t, base+"/api/provinces", &provinces); status != http.StatusOK {
		t.Fatalf("expected 200 from provinces, got %d", status)
	}
	if len(provinces) != 7 || provinces[0].Code != "110000" {
		t.Fatalf("unexpected provinces: %+v", provinces)
	}

	var beijing struct {
		Adapted  bool `json:"adapted"`
		Children []struct {
			Code string `json:"code"`
		} `json:"children"`
	}
	if status := getJSON(t, base+"/api/children/110000", &beijing); status != http.StatusOK {
		t.Fatalf("expected 200 from children, got %d", status)
	}
	if !beijing.Adapted || len(beijing.Children) != 3 || beijing.Children[0].Code != "110101" {
		t.Fatalf("expected districts of Beijing directly, got %+v", beijing)
	}

	var stats struct {
		Provinces int `json:"provinces"`
		Cities    int `json:"cities"`
		Counties  int `json:"counties"`
		Towns     int `json:"towns"`
		Villages  int `json:"villages"`
		Total     int `json:"total"`
	}
	if status := getJSON(t, base+"/api/stats", &stats); status != http.StatusOK {
		t.Fatalf("expected 200 from stats, got %d", status)
	}
	if stats.Provinces != 7 || stats.Cities != 11 || stats.Counties != 16 || stats.Towns != 2 || stats.Villages != 1 || stats.Total != 37 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	resp, err := http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "regions_dataset_regions 37") {
		t.Fatalf("expected dataset gauge to report 37 regions")
	}
	if !strings.Contains(string(body), `route="GET /api/provinces"`) {
		t.Fatalf("expected request metrics for provinces route")
	}
}
