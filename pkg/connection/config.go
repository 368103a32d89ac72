package connection

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mobilebackend/cloudbackend.go/internal/codec"
	"github.com/mobilebackend/cloudbackend.go/pkg/constants"
	"github.com/rs/zerolog"
)

// DefaultEndpointPath is where the mobile backend serves its v1 endpoint.
const DefaultEndpointPath = "/_ah/api/mobilebackend/v1/endpointV1"

// Config carries everything a Connection implementation needs.
type Config struct {
	URL     url.URL
	BaseURL string
	Codec   codec.Codec
	Logger  zerolog.Logger

	Timeout time.Duration
	// MaxElapsedRetry bounds the exponential backoff of one call. Zero disables retries.
	MaxElapsedRetry time.Duration
}

// NewConfig creates a Config for the endpoint root URL, such as
// "https://project.appspot.com". A path in the URL replaces DefaultEndpointPath.
func NewConfig(u *url.URL) *Config {
	path := strings.TrimSuffix(u.Path, "/")
	if path == "" {
		path = DefaultEndpointPath
	}
	return &Config{
		URL:             *u,
		BaseURL:         fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, path),
		Codec:           codec.NewCBOR(),
		Logger:          zerolog.Nop(),
		Timeout:         constants.DefaultHTTPTimeout,
		MaxElapsedRetry: constants.DefaultMaxElapsedRetry,
	}
}
