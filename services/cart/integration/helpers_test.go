// Package integration exercises a running cart service over HTTP. Tests are
// skipped when the service is not reachable.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var client = &http.Client{Timeout: 10 * time.Second}

// baseURL returns the cart service address, overridable with CART_BASE_URL.
func baseURL() string {
	if v := os.Getenv("CART_BASE_URL"); v != "" {
		return v
	}
	return "http://localhost:8003"
}

// caller is the identity the gateway would forward for a request.
type caller struct {
	id    string
	email string
	role  string
}

func newCaller(prefix, role string) caller {
	n := rand.IntN(1_000_000)
	return caller{
		id:    fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), n),
		email: fmt.Sprintf("%s-%d@test.example.com", prefix, n),
		role:  role,
	}
}

// skipIfNotRunning performs a quick liveness check. If the service is
// unreachable the test is skipped, not failed.
func skipIfNotRunning(t *testing.T) {
	t.Helper()
	c := &http.Client{Timeout: 2 * time.Second}
	resp, err := c.Get(baseURL() + "/health/live")
	if err != nil {
		t.Skipf("cart service at %s not reachable: %v", baseURL(), err)
	}
	resp.Body.Close()
}

type response struct {
	status int
	header http.Header
	body   map[string]any
}

// call sends a JSON request as who and decodes the JSON response, if any.
func call(t *testing.T, who caller, method, path string, body any, headers ...string) response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, baseURL()+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", who.id)
	req.Header.Set("X-User-Email", who.email)
	req.Header.Set("X-User-Role", who.role)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := client.Do(req)
	require.NoError(t, err, "%s %s", method, path)
	defer resp.Body.Close()

	out := response{status: resp.StatusCode, header: resp.Header}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out.body), "body: %s", raw)
	}
	return out
}

// data returns the "data" object of a standard envelope.
func (r response) data(t *testing.T) map[string]any {
	t.Helper()
	d, ok := r.body["data"].(map[string]any)
	require.True(t, ok, "expected data object, got %v", r.body)
	return d
}

// createProduct lists a product as an admin and returns its ID.
func createProduct(t *testing.T, admin caller, title string, stock int) string {
	t.Helper()
	resp := call(t, admin, http.MethodPost, "/api/v1/products", map[string]any{
		"title":    title,
		"price":    2999,
		"stock":    stock,
		"category": "integration",
	})
	require.Equal(t, http.StatusCreated, resp.status, "create product: %v", resp.body)
	return resp.data(t)["id"].(string)
}

// createCart creates a cart holding items, given as product ID and quantity
// pairs, and returns its ID.
func createCart(t *testing.T, who caller, items map[string]int) string {
	t.Helper()
	products := make([]map[string]any, 0, len(items))
	for ref, qty := range items {
		products = append(products, map[string]any{"product": ref, "quantity": qty})
	}
	resp := call(t, who, http.MethodPost, "/api/v1/carts", map[string]any{"products": products})
	require.Equal(t, http.StatusCreated, resp.status, "create cart: %v", resp.body)
	return resp.data(t)["id"].(string)
}
