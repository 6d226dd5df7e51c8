package analytics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/coop"
)

const rowsDoc = `[
	{"id": 1, "NomProjetString": "Proj1", "Recu": "2024-01-15", "Archive": false},
	{"id": 2, "NomProjetString": "Proj1", "Recu": "20/01/2024", "Archive": false},
	{"id": 3, "NomProjetString": "Proj1", "Recu": "2024-03-01"},
	{"id": 4, "NomProjetString": "Proj1", "Recu": "2024-03-01", "Archive": true},
	{"id": 5, "NomProjetString": "Proj2", "Recu": ["d", 1714521600]}
]`

func newTestServer(t *testing.T) (*httptest.Server, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	h := NewHandler(newTestSession(sink, coop.Inline{}), 1<<20)
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, sink
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHandlerFlow(t *testing.T) {
	srv, sink := newTestServer(t)

	if code := getJSON(t, srv.URL+"/api/v1/series?category=Proj1", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("series before load: %d", code)
	}

	resp, err := http.Post(srv.URL+"/api/v1/snapshot", "application/json", strings.NewReader(rowsDoc))
	if err != nil {
		t.Fatal(err)
	}
	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !st.Loaded || st.Rows != 5 {
		t.Fatalf("load: %d %+v", resp.StatusCode, st)
	}

	var cats struct {
		Categories []string `json:"categories"`
	}
	if code := getJSON(t, srv.URL+"/api/v1/categories", &cats); code != http.StatusOK || len(cats.Categories) != 2 {
		t.Fatalf("categories: %d %v", code, cats.Categories)
	}

	var series Series
	if code := getJSON(t, srv.URL+"/api/v1/series?category=Proj1&granularity=bogus", &series); code != http.StatusOK {
		t.Fatalf("series: %d", code)
	}
	if series.Granularity != "month" || series.Total != 3 || len(series.Keys) != 3 {
		t.Errorf("series = %+v", series)
	}

	var rows struct {
		RowIDs []int64 `json:"rowIds"`
	}
	if code := getJSON(t, srv.URL+"/api/v1/series/rows?key=2024-01", &rows); code != http.StatusOK {
		t.Fatalf("rows: %d", code)
	}
	if len(rows.RowIDs) != 2 || rows.RowIDs[0] != 1 || rows.RowIDs[1] != 2 {
		t.Errorf("rowIds = %v", rows.RowIDs)
	}
	if sink.last().Type != EventSelect {
		t.Errorf("sink event = %+v", sink.last())
	}

	if code := getJSON(t, srv.URL+"/api/v1/series/rows?key=nope", nil); code != http.StatusBadRequest {
		t.Errorf("bad key: %d", code)
	}
	if code := getJSON(t, srv.URL+"/api/v1/series/rows", nil); code != http.StatusBadRequest {
		t.Errorf("missing key: %d", code)
	}
}

func TestHandlerRejectsBadSnapshots(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, body := range []string{`"text"`, `{"a":[1],"b":[]}`, `{`} {
		resp, err := http.Post(srv.URL+"/api/v1/snapshot", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: status %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestHandlerMissingColumns(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Post(srv.URL+"/api/v1/snapshot", "application/json",
		strings.NewReader(`{"NomProjet":["P"],"id":[1]}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	var body map[string]string
	if code := getJSON(t, srv.URL+"/api/v1/series?category=P", &body); code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422", code)
	}
	if !strings.Contains(body["error"], "date") {
		t.Errorf("error = %q", body["error"])
	}
}
