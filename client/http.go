package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// httpGet performs a GET request and decodes the JSON response. Any status
// listed in accept is decoded; other statuses fail.
func (c *Client) httpGet(path string, result any, accept ...int) (int, error) {
	url := c.base + path

	resp, err := c.http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("GET %s:\n%w", url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if !accepted(resp.StatusCode, accept) {
		var apiErr struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)

		return resp.StatusCode, fmt.Errorf("GET %s: status %d %s", url, resp.StatusCode, apiErr.Error)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s:\n%w", url, err)
	}

	return resp.StatusCode, nil
}

func accepted(code int, accept []int) bool {
	if len(accept) == 0 {
		return code == http.StatusOK
	}

	for _, a := range accept {
		if a == code {
			return true
		}
	}

	return false
}
