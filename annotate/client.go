package annotate

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

// maxErrorBody limits how much of an error response ends up in the error.
const maxErrorBody = 512

func newRestClient(hc *http.Client, baseURL string) *resty.Client {
	return resty.NewWithClient(hc).
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
}

// statusError describes a non-2xx response.
func statusError(resp *resty.Response) error {
	snippet := strings.TrimSpace(resp.String())
	if len(snippet) > maxErrorBody {
		snippet = snippet[:maxErrorBody]
	}
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode(), snippet)
}
