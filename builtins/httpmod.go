package builtins

import (
	"io"
	"net/http"
	"strings"
	"time"

	"neutron/types"
)

func stringsReader(s string) *strings.Reader { return strings.NewReader(s) }

// InitHTTP registers the http module: a small synchronous get/post
// request/response surface built directly on net/http's client idiom.
func InitHTTP(reg *Registry) *types.Module {
	mod := types.NewModule("http")
	exports := mod.Exports

	client := &http.Client{Timeout: 10 * time.Second}

	exports.Set("get", Native("get", 1, func(_ any, args []types.Value) (types.Value, error) {
		url, err := requireString(args, 0, "http.get")
		if err != nil {
			return nil, err
		}
		resp, err := client.Get(url.String())
		if err != nil {
			return nil, types.NewRuntimeError(types.ErrImport, 0, "http.get: %s", err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, types.NewRuntimeError(types.ErrImport, 0, "http.get: %s", err)
		}
		result := types.NewEmptyMap()
		result.Set("status", types.NewNumber(float64(resp.StatusCode)))
		result.Set("body", types.NewString(string(body)))
		return result, nil
	}))

	exports.Set("post", Native("post", 2, func(_ any, args []types.Value) (types.Value, error) {
		url, err := requireString(args, 0, "http.post")
		if err != nil {
			return nil, err
		}
		body, err := requireString(args, 1, "http.post")
		if err != nil {
			return nil, err
		}
		resp, err := client.Post(url.String(), "application/json", stringsReader(body.String()))
		if err != nil {
			return nil, types.NewRuntimeError(types.ErrImport, 0, "http.post: %s", err)
		}
		defer resp.Body.Close()
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, types.NewRuntimeError(types.ErrImport, 0, "http.post: %s", err)
		}
		result := types.NewEmptyMap()
		result.Set("status", types.NewNumber(float64(resp.StatusCode)))
		result.Set("body", types.NewString(string(respBody)))
		return result, nil
	}))

	return mod
}
