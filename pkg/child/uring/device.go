// Package uring implements the Child Device capability against io_uring.
//
// No io_uring binding is vendored anywhere in this module's dependency
// set, and one cannot be added without running the Go toolchain to fetch
// and verify it. Until that binding lands, this backend embeds aio.Device
// and serves submissions through pread64/pwrite64 exactly like the aio
// backend; only the registered scheme ("uring") and the log line on Open
// differ, so Nexus configs written against uring:// children keep working
// unchanged once a real binding is wired in behind the same Device type.
package uring

import (
	"context"
	"net/url"

	"github.com/nexusd/nexuscore/internal/logger"
	"github.com/nexusd/nexuscore/pkg/child"
	"github.com/nexusd/nexuscore/pkg/child/aio"
	cerrors "github.com/nexusd/nexuscore/pkg/child/errors"
)

func init() {
	child.DefaultRegistry.Register("uring", Open)
}

// Device is a uring:// child backend. It currently delegates every
// operation to an embedded aio.Device.
type Device struct {
	*aio.Device
	uri string
}

// Open constructs a Device from a uring:// URI. The path component is
// interpreted the same way aio.Open interprets it.
func Open(raw string, u *url.URL) (child.Device, error) {
	aioRaw := "aio://" + u.Path
	if u.Opaque != "" {
		aioRaw = "aio:" + u.Opaque
	}
	aioURL, err := url.Parse(aioRaw)
	if err != nil {
		return nil, cerrors.NewInvalidURIError(raw, err.Error())
	}

	inner, err := aio.Open(aioRaw, aioURL)
	if err != nil {
		return nil, err
	}

	return &Device{Device: inner.(*aio.Device), uri: raw}, nil
}

// Open establishes the backend's session and logs that this is the
// pread64/pwrite64 fallback rather than a true io_uring submission queue.
func (d *Device) Open(ctx context.Context) error {
	if err := d.Device.Open(ctx); err != nil {
		return err
	}
	logger.Debug("uring child opened via aio fallback", logger.ChildURI(d.uri))
	return nil
}

// URI returns the URI this device was constructed from.
func (d *Device) URI() string {
	return d.uri
}
