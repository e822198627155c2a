package upstream

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/tidwall/gjson"
)

// RepresentativeModels are the three models the quota scheduler polls as
// proxies for the gemini/claude/image_gen tier-sharing quota groups.
var RepresentativeModels = []string{
	"claude-sonnet-4-5-thinking",
	"gemini-3-pro-high",
	"gemini-3-flash",
}

const quotaPollTimeout = 15 * time.Second

// FetchAvailableModels polls fetchAvailableModels and returns the
// remainingFraction reported for each of RepresentativeModels that upstream
// includes in its response; models it omits are absent from the result map.
func (c *Client) FetchAvailableModels(ctx context.Context, accessToken, projectID string) (map[string]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, quotaPollTimeout)
	defer cancel()

	body, _ := json.Marshal(map[string]string{"project": projectID})
	req, err := c.newRequest(ctx, "fetchAvailableModels", accessToken, body, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(raw)}
	}

	out := make(map[string]float64, len(RepresentativeModels))
	parsed := gjson.ParseBytes(unwrapResponse(raw))
	parsed.Get("models").ForEach(func(_, model gjson.Result) bool {
		name := model.Get("name").String()
		frac := model.Get("quotaInfo.remainingFraction")
		if frac.Exists() {
			out[name] = frac.Float()
		}
		return true
	})
	return out, nil
}
