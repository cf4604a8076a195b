package textsource

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// DefaultFetchURL serves placeholder todos whose titles make short passages.
const DefaultFetchURL = "https://jsonplaceholder.typicode.com"

// DefaultFetchTimeout bounds one fetch.
const DefaultFetchTimeout = 10 * time.Second

// fetchIDs is how many todos the placeholder service has.
const fetchIDs = 200

// Fetcher loads a passage from a generic text service.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// HTTPFetcher reads the title of a random todo.
type HTTPFetcher struct {
	client  *resty.Client
	timeout time.Duration
	intn    func(n int) int
}

func NewHTTPFetcher(baseURL string, timeout time.Duration, client *resty.Client) *HTTPFetcher {
	if client == nil {
		client = resty.New()
	}
	if baseURL == "" {
		baseURL = DefaultFetchURL
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	client.SetBaseURL(baseURL).SetHeader("Accept", "application/json")
	return &HTTPFetcher{client: client, timeout: timeout, intn: rand.IntN}
}

// Fetch returns a passage or a *Error of kind timeout or network.
func (f *HTTPFetcher) Fetch(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	id := f.intn(fetchIDs) + 1
	resp, err := f.client.R().
		SetContext(ctx).
		SetPathParam("id", fmt.Sprint(id)).
		Get("/todos/{id}")
	if err != nil {
		if isTimeout(ctx, err) {
			return "", timeoutError(err)
		}
		return "", networkError(err)
	}
	if resp.IsError() {
		return "", networkError(fmt.Errorf("HTTP error! status: %d", resp.StatusCode()))
	}
	title := gjson.GetBytes(resp.Body(), "title")
	if title.Type != gjson.String || title.String() == "" {
		return "", networkError(errors.New("no content received from API"))
	}
	return title.String(), nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
