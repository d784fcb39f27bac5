package scraper_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chomp-dev/chomp/pkg/ingester"
	"github.com/chomp-dev/chomp/pkg/loader/scraper"
)

const samplePage = `<!doctype html>
<html>
<head><title>Prices</title></head>
<body>
  <div class="content">
    <p id="price" data-currency="usd">123.45</p>
  </div>
</body>
</html>`

func staticServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(samplePage))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func buildIngester(t *testing.T, target string) *ingester.Ingester {
	t.Helper()
	fld := ingester.FieldSpec{}
	fld.Name = "value"
	fld.Type = ingester.TypeString

	spec := ingester.IngesterSpec{
		Kind:         ingester.KindScraper,
		Interval:     "s10",
		ResourceType: ingester.ResourceValue,
		Target:       target,
		Fields:       []ingester.FieldSpec{fld},
	}
	spec.Name = "scraped_price"
	require.NoError(t, spec.Validate())
	return ingester.New(spec)
}

func TestAcquireReturnsRawHTMLBody(t *testing.T) {
	srv := staticServer(t)
	ld := scraper.New(logrus.New(), 5*time.Second)
	defer ld.Close()

	ing := buildIngester(t, srv.URL)

	raw, vitals, err := ld.Acquire(t.Context(), ing)
	require.NoError(t, err)
	require.NotNil(t, vitals)
	assert.Equal(t, 1, vitals.FieldCount)

	body, ok := raw.([]byte)
	require.True(t, ok, "scraper Acquire must return raw HTML bytes for Phase 1 CSS/XPath selection")
	assert.Contains(t, string(body), "123.45")
}

func TestAcquireFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ld := scraper.New(logrus.New(), 5*time.Second)
	defer ld.Close()

	ing := buildIngester(t, srv.URL)

	_, _, err := ld.Acquire(t.Context(), ing)
	require.Error(t, err)
}

func TestAcquireAppliesConfiguredHeaders(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	ld := scraper.New(logrus.New(), 5*time.Second)
	defer ld.Close()

	ing := buildIngester(t, srv.URL)
	ing.Headers = map[string]string{"Authorization": "Bearer token"}

	_, _, err := ld.Acquire(t.Context(), ing)
	require.NoError(t, err)
	assert.Equal(t, "Bearer token", gotAuth)
}
