package webhook

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	wrp "github.com/xmidt-org/wrp-go/v3"
)

// Body formats accepted in Config.Format.
const (
	FormatJSON = "json"
	FormatWRP  = "wrp"
)

// wrpSource identifies the gateway in WRP-framed deliveries.
const wrpSource = "sonosgw"

// Config describes the outbound webhook endpoint.
type Config struct {
	URL            string
	HeaderName     string // optional custom header, sent only with HeaderContents
	HeaderContents string
	Format         string
	Timeout        time.Duration // zero means no client-side timeout
}

var (
	// ErrBadStatus indicates a non-2xx response from the webhook endpoint.
	ErrBadStatus = errors.New("webhook returned non-2xx status")
)

// Client POSTs notification envelopes to the configured URL.
type Client struct {
	cfg  Config
	HTTP *http.Client
}

func New(cfg Config) *Client {
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	return &Client{cfg: cfg, HTTP: &http.Client{Timeout: cfg.Timeout}}
}

// URL returns the destination, for logging.
func (c *Client) URL() string { return c.cfg.URL }

// Post delivers one envelope. In wrp format the envelope becomes the payload
// of a msgpack-encoded SimpleEvent addressed to "event:<kind>".
func (c *Client) Post(ctx context.Context, kind string, envelope []byte) error {
	body, contentType, err := c.encode(kind, envelope)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build webhook request")
	}
	req.Header.Set("Content-Type", contentType)
	if c.cfg.HeaderName != "" && c.cfg.HeaderContents != "" {
		req.Header.Set(c.cfg.HeaderName, c.cfg.HeaderContents)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errors.Wrap(err, "post webhook")
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Wrapf(ErrBadStatus, "status %d %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) encode(kind string, envelope []byte) ([]byte, string, error) {
	switch c.cfg.Format {
	case FormatJSON:
		return envelope, "application/json", nil
	case FormatWRP:
		msg := &wrp.Message{
			Type:            wrp.SimpleEventMessageType,
			Source:          wrpSource,
			Destination:     "event:" + kind,
			TransactionUUID: uuid.NewString(),
			ContentType:     "application/json",
			Payload:         envelope,
		}
		buf := &bytes.Buffer{}
		if err := wrp.NewEncoder(buf, wrp.Msgpack).Encode(msg); err != nil {
			return nil, "", errors.Wrap(err, "encode wrp")
		}
		return buf.Bytes(), "application/msgpack", nil
	default:
		return nil, "", errors.Errorf("unknown webhook format %q", c.cfg.Format)
	}
}
