// Package imagehost turns user supplied profile images into hosted URLs.
//
// A source is either a base64 data URI or an http(s) URL. The payload must
// decode as PNG, JPEG, GIF or WebP and stay within the size and pixel limits;
// images larger than the maximum dimension are scaled down before they are
// stored. Remote sources on loopback, private or link-local addresses are
// refused unless AllowPrivateHosts is set.
package imagehost

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/dtroode/account-server/internal/model"
)

const (
	// KeyPrefix is where profile images live in the bucket.
	KeyPrefix = "users/profile_images/"

	DefaultMaxBytes     = 5 << 20
	DefaultMaxDimension = 512
	DefaultMaxPixels    = 40_000_000
	DefaultFetchTimeout = 10 * time.Second
)

var (
	// ErrInvalidImage marks sources that are not acceptable images.
	ErrInvalidImage = model.ErrInvalidImage
	// ErrImageUnreachable marks remote sources that could not be downloaded.
	ErrImageUnreachable = model.ErrImageUnreachable

	errForbiddenAddress = errors.New("address not allowed")
)

var _ model.ImageHost = (*Uploader)(nil)

// Config configures an Uploader.
type Config struct {
	PublicURL    string
	MaxBytes     int64
	MaxDimension int
	// MaxPixels bounds width*height so decoding stays within a known budget.
	MaxPixels         int64
	FetchTimeout      time.Duration
	AllowPrivateHosts bool
}

// Uploader validates images and stores them in object storage.
type Uploader struct {
	storage      model.Storage
	client       *http.Client
	publicURL    string
	maxBytes     int64
	maxDimension int
	maxPixels    int64
}

// NewUploader creates an Uploader; zero config values take the defaults.
func NewUploader(storage model.Storage, cfg Config) *Uploader {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = DefaultMaxDimension
	}
	if cfg.MaxPixels <= 0 {
		cfg.MaxPixels = DefaultMaxPixels
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	return &Uploader{
		storage:      storage,
		client:       newFetchClient(cfg.FetchTimeout, cfg.AllowPrivateHosts),
		publicURL:    strings.TrimRight(cfg.PublicURL, "/"),
		maxBytes:     cfg.MaxBytes,
		maxDimension: cfg.MaxDimension,
		maxPixels:    cfg.MaxPixels,
	}
}

// newFetchClient checks every dialled address, redirects included, after
// name resolution.
func newFetchClient(timeout time.Duration, allowPrivate bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !allowPrivate {
		dialer := &net.Dialer{Timeout: timeout, Control: refusePrivate}
		transport.Proxy = nil
		transport.DialContext = dialer.DialContext
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

func refusePrivate(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}
	ip = ip.Unmap()
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified() || ip.IsMulticast() || ip.IsInterfaceLocalMulticast() {
		return errForbiddenAddress
	}
	return nil
}

// Upload stores the image behind raw and returns its public URL.
func (u *Uploader) Upload(ctx context.Context, raw string) (string, error) {
	data, err := u.load(ctx, raw)
	if err != nil {
		return "", err
	}

	body, contentType, ext, err := u.normalize(data)
	if err != nil {
		return "", err
	}

	key := KeyPrefix + uuid.NewString() + ext
	if err := u.storage.Upload(ctx, key, bytes.NewReader(body), int64(len(body)), contentType); err != nil {
		return "", fmt.Errorf("failed to store image: %w", err)
	}

	return u.publicURL + "/" + key, nil
}

// Delete removes an image previously returned by Upload. URLs that point
// elsewhere are left alone.
func (u *Uploader) Delete(ctx context.Context, hostedURL string) error {
	key, ok := u.keyOf(hostedURL)
	if !ok {
		return nil
	}
	if err := u.storage.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}

func (u *Uploader) keyOf(hostedURL string) (string, bool) {
	prefix := u.publicURL + "/" + KeyPrefix
	if hostedURL == "" || !strings.HasPrefix(hostedURL, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(hostedURL, u.publicURL+"/")
	if key == KeyPrefix || strings.Contains(key, "..") {
		return "", false
	}
	return key, true
}

func (u *Uploader) load(ctx context.Context, raw string) ([]byte, error) {
	switch {
	case strings.HasPrefix(raw, "data:"):
		return u.decodeDataURI(raw)
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		return u.fetch(ctx, raw)
	default:
		return nil, fmt.Errorf("%w: expected a data URI or an http(s) URL", ErrInvalidImage)
	}
}

func (u *Uploader) decodeDataURI(raw string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("%w: malformed data URI", ErrInvalidImage)
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("%w: data URI must be base64 encoded", ErrInvalidImage)
	}
	if int64(base64.StdEncoding.DecodedLen(len(payload))) > u.maxBytes+2 {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", ErrInvalidImage, u.maxBytes)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64 payload", ErrInvalidImage)
	}
	if int64(len(data)) > u.maxBytes {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", ErrInvalidImage, u.maxBytes)
	}
	return data, nil
}

func (u *Uploader) fetch(ctx context.Context, raw string) ([]byte, error) {
	if _, err := url.ParseRequestURI(raw); err != nil {
		return nil, fmt.Errorf("%w: bad image URL", ErrInvalidImage)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: bad image URL", ErrInvalidImage)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: image URL returned %d", ErrImageUnreachable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, u.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > u.maxBytes {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", ErrInvalidImage, u.maxBytes)
	}
	return data, nil
}

// normalize checks that data is a supported image and scales it down when
// either side exceeds maxDimension. Small images are stored untouched.
func (u *Uploader) normalize(data []byte) ([]byte, string, string, error) {
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", "", fmt.Errorf("%w: content type %s", ErrInvalidImage, contentType)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > u.maxPixels {
		return nil, "", "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, cfg.Width, cfg.Height, u.maxPixels)
	}

	if cfg.Width <= u.maxDimension && cfg.Height <= u.maxDimension {
		return data, contentType, extension(format), nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	dst := image.NewRGBA(fitWithin(src.Bounds(), u.maxDimension))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	switch format {
	case "png", "gif":
		if err := png.Encode(&buf, dst); err != nil {
			return nil, "", "", fmt.Errorf("failed to encode image: %w", err)
		}
		return buf.Bytes(), "image/png", ".png", nil
	default:
		if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85}); err != nil {
			return nil, "", "", fmt.Errorf("failed to encode image: %w", err)
		}
		return buf.Bytes(), "image/jpeg", ".jpg", nil
	}
}

// fitWithin returns the largest rectangle with the aspect ratio of b whose
// sides do not exceed limit.
func fitWithin(b image.Rectangle, limit int) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	if w >= h {
		h = max(1, h*limit/w)
		w = limit
	} else {
		w = max(1, w*limit/h)
		h = limit
	}
	return image.Rect(0, 0, w, h)
}

func extension(format string) string {
	switch format {
	case "jpeg":
		return ".jpg"
	case "png":
		return ".png"
	case "gif":
		return ".gif"
	case "webp":
		return ".webp"
	default:
		return ""
	}
}
