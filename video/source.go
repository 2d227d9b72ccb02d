package video

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// FrameSource yields the current frame of an active video stream.
type FrameSource interface {
	Frame(ctx context.Context) (image.Image, error)
}

// StaticSource always returns the same image.
type StaticSource struct {
	Image image.Image
}

func (s *StaticSource) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Image, nil
}

// Control is one camera setting applied through the /control endpoint.
type Control struct {
	Var string `json:"var"`
	Val int    `json:"val"`
}

// DefaultControls selects the largest supported frame size and flips the
// sensor image upright.
var DefaultControls = []Control{
	{Var: "framesize", Val: 12},
	{Var: "vflip", Val: 1},
}

// SnapshotSource polls an ESP32-CAM style HTTP camera: every frame is a
// fresh JPEG from <base>/capture. Polling is rate limited.
type SnapshotSource struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewSnapshotSource polls at most maxFPS snapshots per second. A nil client
// uses a client with a 10s timeout.
func NewSnapshotSource(baseURL string, maxFPS float64, client *http.Client) *SnapshotSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if maxFPS <= 0 {
		maxFPS = 1
	}
	return &SnapshotSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(maxFPS), 1),
	}
}

func (s *SnapshotSource) Frame(ctx context.Context) (image.Image, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	// t defeats intermediate caches
	u := s.baseURL + "/capture?t=" + strconv.FormatInt(time.Now().UnixMilli(), 10)
	resp, err := s.get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("video: decode snapshot: %w", err)
	}
	return img, nil
}

// Configure sets one camera variable.
func (s *SnapshotSource) Configure(ctx context.Context, c Control) error {
	q := url.Values{}
	q.Set("var", c.Var)
	q.Set("val", strconv.Itoa(c.Val))

	resp, err := s.get(ctx, s.baseURL+"/control?"+q.Encode())
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// ConfigureAll applies controls in order and stops at the first failure.
func (s *SnapshotSource) ConfigureAll(ctx context.Context, controls []Control) error {
	for _, c := range controls {
		if err := s.Configure(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (s *SnapshotSource) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("video: build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("video: get %s: %w", req.URL.Path, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("video: get %s: status %d", req.URL.Path, resp.StatusCode)
	}
	return resp, nil
}
