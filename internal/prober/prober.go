package prober

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/tanq16/rangeflow/internal/utils"
)

// ErrProbeFailed wraps anything that went wrong talking to the source, as
// opposed to the source reporting unusable metadata.
var ErrProbeFailed = errors.New("probe failed")

// Resource is what a download needs to know before a task is created.
type Resource struct {
	URL          string
	ResolvedURL  string
	FileName     string
	Size         int64
	AcceptRanges bool
}

// Presigner turns an object reference into a plain HTTPS URL.
type Presigner interface {
	PresignGetObject(ctx context.Context, bucket, key string) (string, error)
}

type Prober struct {
	client    *utils.RangeClient
	presigner Presigner
}

// New returns a prober. presigner may be nil, in which case s3:// URLs are
// rejected.
func New(client *utils.RangeClient, presigner Presigner) *Prober {
	return &Prober{client: client, presigner: presigner}
}

// Probe confirms the source is reachable and reports its size.
func (p *Prober) Probe(ctx context.Context, link string) (*Resource, error) {
	log := utils.GetLogger("prober")
	parsed, err := url.Parse(link)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %s", utils.ErrInvalidURL, link)
	}
	resource := &Resource{URL: link}
	fetchURL := link
	switch parsed.Scheme {
	case "http", "https":
	case "s3":
		if p.presigner == nil {
			return nil, fmt.Errorf("%w: s3 sources are not configured", utils.ErrInvalidURL)
		}
		key := strings.TrimPrefix(parsed.Path, "/")
		if key == "" {
			return nil, fmt.Errorf("%w: missing object key in %s", utils.ErrInvalidURL, link)
		}
		fetchURL, err = p.presigner.PresignGetObject(ctx, parsed.Host, key)
		if err != nil {
			return nil, fmt.Errorf("%w: presigning %s: %w", ErrProbeFailed, link, err)
		}
		resource.ResolvedURL = fetchURL
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", utils.ErrInvalidURL, parsed.Scheme)
	}

	resp, err := p.client.Head(ctx, fetchURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %w: %d", ErrProbeFailed, utils.ErrUnexpectedStatus, resp.StatusCode)
	}
	size, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil || size <= 0 {
		return nil, utils.ErrUnknownSize
	}
	resource.Size = size
	resource.AcceptRanges = resp.Header.Get("Accept-Ranges") == "bytes"
	resource.FileName = fileNameFrom(resp.Header.Get("Content-Disposition"), resp.Request.URL)
	if resource.FileName == "" {
		resource.FileName = fileNameFrom("", parsed)
	}
	if resource.FileName == "" {
		resource.FileName = utils.FallbackFileName()
	}
	log.Debug().Str("url", link).Int64("size", size).Bool("ranges", resource.AcceptRanges).Str("name", resource.FileName).Msg("Probed resource")
	return resource, nil
}

// fileNameFrom prefers the server's Content-Disposition over the URL path.
func fileNameFrom(contentDisposition string, u *url.URL) string {
	if contentDisposition != "" {
		if _, params, err := mime.ParseMediaType(contentDisposition); err == nil {
			if fn := params["filename"]; fn != "" {
				return utils.SanitizeFileName(fn)
			}
		}
	}
	if u == nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return ""
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	return utils.SanitizeFileName(base)
}
