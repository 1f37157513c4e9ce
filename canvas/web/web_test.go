package web

import (
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-canvas/canvas/models"
)

func TestRenderIndex(t *testing.T) {
	site, err := New()
	assert.NoError(t, err)

	rec := httptest.NewRecorder()
	err = site.RenderIndex(rec, PageData{
		Title:          "Warden AI tool",
		RequirePayment: true,
		Networks: []models.NetworkInfo{
			{ID: "warden", Name: "Warden Protocol Testnet", Family: "evm", Price: "1", Symbol: "WARD", PriceBaseUnits: "1000000000000000000"},
			{ID: "axone", Name: "Axone testnet", Family: "cosmos", Price: "1", Symbol: "AXONE", PriceBaseUnits: "1000000"},
		},
	})
	assert.NoError(t, err)

	body := rec.Body.String()
	assert.Equal(t, rec.Header().Get("Content-Type"), "text/html; charset=utf-8")
	assert.True(t, strings.Contains(body, "<title>Warden AI tool</title>"))
	assert.True(t, strings.Contains(body, ">WA<"))
	assert.True(t, strings.Contains(body, "Price per generation: 1 $WARD on Warden Protocol Testnet"))
	assert.True(t, strings.Contains(body, `<option value="axone">Axone testnet</option>`))
	assert.True(t, strings.Contains(body, `"requirePayment":true`))
	assert.True(t, strings.Contains(body, `"priceBaseUnits":"1000000"`))
	assert.True(t, strings.Contains(body, `maxlength="1000"`))
}

func TestRenderIndexWithoutNetworks(t *testing.T) {
	site, err := New()
	assert.NoError(t, err)

	rec := httptest.NewRecorder()
	assert.NoError(t, site.RenderIndex(rec, PageData{}))

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "<title>Spectra Canvas</title>"))
	assert.True(t, strings.Contains(body, "Generation is free on this instance."))
	assert.False(t, strings.Contains(body, "network-select"))
}

func TestRenderIndexEscapesConfig(t *testing.T) {
	site, err := New()
	assert.NoError(t, err)

	rec := httptest.NewRecorder()
	assert.NoError(t, site.RenderIndex(rec, PageData{
		Networks: []models.NetworkInfo{{ID: "x", Name: "</script><script>alert(1)</script>"}},
	}))
	assert.False(t, strings.Contains(rec.Body.String(), "<script>alert(1)</script>"))
}

func TestStaticHandler(t *testing.T) {
	site, err := New()
	assert.NoError(t, err)
	handler := site.StaticHandler()

	for _, path := range []string{"/static/app.js", "/static/styles.css"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, rec.Code, http.StatusOK)
		assert.True(t, rec.Body.Len() > 0)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/missing.js", nil))
	assert.Equal(t, rec.Code, http.StatusNotFound)
}

func TestInitials(t *testing.T) {
	assert.Equal(t, initials("Spectra Canvas"), "SC")
	assert.Equal(t, initials("warden ai tool"), "WA")
	assert.Equal(t, initials("Ążur"), "Ą")
	assert.Equal(t, initials(""), "")
}

func TestRenderIndexHasRetryHint(t *testing.T) {
	site, err := New()
	assert.NoError(t, err)

	rec := httptest.NewRecorder()
	assert.NoError(t, site.RenderIndex(rec, PageData{
		RequirePayment: true,
		Networks:       []models.NetworkInfo{{ID: "warden", Family: "evm"}},
	}))
	assert.True(t, strings.Contains(rec.Body.String(), `id="pending-payment"`))
}

// The page keeps an unredeemed hash for a retry unless the server answered
// with one of these codes.
func TestAppDropsPendingPaymentOnFinalCodes(t *testing.T) {
	script, err := fs.ReadFile(staticFS, "static/app.js")
	assert.NoError(t, err)

	body := string(script)
	for _, code := range []string{
		models.CodePaymentFailed,
		models.CodeAlreadyRedeemed,
		models.CodeInvalidTxHash,
		models.CodeUnsupportedNetwork,
	} {
		assert.True(t, strings.Contains(body, `"`+code+`"`))
	}
	for _, code := range []string{models.CodePaymentTimeout, models.CodeUpstreamError, models.CodePaymentInFlight} {
		assert.False(t, strings.Contains(body, `"`+code+`"`))
	}
	assert.True(t, strings.Contains(body, "state.pendingPayment = null;"))
}
