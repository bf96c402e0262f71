package register_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasse-pos/internal/register"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string          `json:"code"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func newRouter(t *testing.T, sub *fakeSubmitter) http.Handler {
	t.Helper()
	reg := register.NewRegistry(newDeps(sub), 0)
	h := register.NewHandler(register.HandlerConfig{Registry: reg})
	r := chi.NewRouter()
	r.Route("/api/v1/sessions", func(s chi.Router) { h.Mount(s, register.Middlewares{}) })
	return r
}

func call(t *testing.T, h http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var env envelope
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	}
	return rr.Code, env
}

func TestSessionHTTPFlow(t *testing.T) {
	h := newRouter(t, &fakeSubmitter{})

	code, env := call(t, h, http.MethodPost, "/api/v1/sessions/", "")
	require.Equal(t, http.StatusCreated, code)
	var view register.View
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.NotEmpty(t, view.ID)
	base := "/api/v1/sessions/" + view.ID

	code, env = call(t, h, http.MethodPost, base+"/items", `{"productId":"coffee"}`)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.Len(t, view.Items, 1)
	require.Equal(t, "EUR", view.Currency)
	require.Contains(t, view.TotalDisplay, "20,00")

	code, env = call(t, h, http.MethodPost, base+"/items", `{"productId":"gone"}`)
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "OUT_OF_STOCK", env.Error.Code)

	code, env = call(t, h, http.MethodPost, base+"/vouchers", `{"code":"123"}`)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.Equal(t, "INVALID_VOUCHER_FORMAT", env.Error.Code)

	code, _ = call(t, h, http.MethodPost, base+"/undo", "")
	require.Equal(t, http.StatusOK, code)
	code, env = call(t, h, http.MethodPost, base+"/undo", "")
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "NOTHING_TO_UNDO", env.Error.Code)

	code, _ = call(t, h, http.MethodPost, base+"/redo", "")
	require.Equal(t, http.StatusOK, code)

	code, env = call(t, h, http.MethodPost, base+"/checkout", `{"paymentMethod":"cash","cashReceived":"50"}`)
	require.Equal(t, http.StatusOK, code)
	var out struct {
		Result struct {
			Success bool    `json:"success"`
			Change  float64 `json:"change"`
		} `json:"result"`
		Session register.View `json:"session"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.True(t, out.Result.Success)
	require.Equal(t, 30.0, out.Result.Change)
	require.Empty(t, out.Session.Items)

	code, _ = call(t, h, http.MethodDelete, base, "")
	require.Equal(t, http.StatusNoContent, code)
}

func TestSessionHTTPValidation(t *testing.T) {
	h := newRouter(t, &fakeSubmitter{})
	_, env := call(t, h, http.MethodPost, "/api/v1/sessions/", "")
	var view register.View
	require.NoError(t, json.Unmarshal(env.Data, &view))
	base := "/api/v1/sessions/" + view.ID

	code, env := call(t, h, http.MethodPost, base+"/items", `{}`)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	code, env = call(t, h, http.MethodPost, base+"/items", `{`)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "BAD_REQUEST", env.Error.Code)

	code, env = call(t, h, http.MethodPost, base+"/checkout", `{"paymentMethod":"bitcoin"}`)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	code, env = call(t, h, http.MethodPost, base+"/checkout", `{"paymentMethod":"cash"}`)
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "EMPTY_CART", env.Error.Code)

	code, env = call(t, h, http.MethodPut, base+"/autosave", `{}`)
	require.Equal(t, http.StatusUnprocessableEntity, code)

	code, env = call(t, h, http.MethodGet, "/api/v1/sessions/00000000-0000-0000-0000-000000000000", "")
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "SESSION_NOT_FOUND", env.Error.Code)
}
