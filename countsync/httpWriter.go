package countsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"bitbucket.org/mmdatafocus/counts_backend/utils"
)

// HTTPWriter writes entry edits through the REST API. Transport and
// 5xx failures come back as TransientIOError so callers can tell
// retryable trouble apart from rejections.
type HTTPWriter struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPWriter(baseURL string, token string) *HTTPWriter {
	return &HTTPWriter{
		BaseURL: baseURL,
		Token:   token,
		Client:  http.DefaultClient,
	}
}

func (w *HTTPWriter) put(ctx context.Context, url string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("token", w.Token)

	resp, err := w.Client.Do(req)
	if err != nil {
		return utils.NewTransientIOError("PUT "+url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var apiErr struct {
		Error   string `json:"error"`
		ItemIds []int  `json:"item_ids"`
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &apiErr)
	if apiErr.Error == "" {
		apiErr.Error = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return utils.NewItemValidationError(apiErr.ItemIds, "%s", apiErr.Error)
	case resp.StatusCode == http.StatusConflict:
		return utils.NewConflictError("%s", apiErr.Error)
	case resp.StatusCode == http.StatusNotFound:
		return utils.ErrorRecordNotFound
	case resp.StatusCode >= 500:
		return utils.NewTransientIOError("PUT "+url, fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Error))
	default:
		return fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Error)
	}
}

func (w *HTTPWriter) WriteCount(ctx context.Context, sessionId int, itemId int, value *int) error {
	url := fmt.Sprintf("%s/restock-sessions/%d/items/%d/count", w.BaseURL, sessionId, itemId)
	return w.put(ctx, url, map[string]interface{}{"value": value})
}

func (w *HTTPWriter) WritePulled(ctx context.Context, sessionId int, itemId int, pulled bool) error {
	url := fmt.Sprintf("%s/restock-sessions/%d/items/%d/pulled", w.BaseURL, sessionId, itemId)
	return w.put(ctx, url, map[string]interface{}{"pulled": pulled})
}
