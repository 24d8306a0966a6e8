// Package iscsi implements the Child Device capability against a remote
// iSCSI target. It registers itself against child.DefaultRegistry for the
// "iscsi" URI scheme, e.g. iscsi://10.0.0.5:3260/iqn.2024-01.io.nexus:disk0.
//
// Shares its wire protocol and connection shape with pkg/child/nvmf
// (pkg/child/transport); the two differ only in default port and the
// identifier exchanged during login (IQN vs NQN), matching how Mayastor's
// own nexus treats both as interchangeable remote block transports.
package iscsi

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/nexusd/nexuscore/internal/logger"
	"github.com/nexusd/nexuscore/pkg/child"
	cerrors "github.com/nexusd/nexuscore/pkg/child/errors"
	"github.com/nexusd/nexuscore/pkg/child/transport"
)

func init() {
	child.DefaultRegistry.Register("iscsi", Open)
}

const dialTimeout = 5 * time.Second

// Device is an iscsi:// child backend.
type Device struct {
	uri       string
	addr      string
	iqn       string
	conn      *transport.Conn
	blockSize uint32
	numBlocks uint64
}

// Open constructs a Device from an iscsi:// URI. u.Host carries the target
// address (host:port); u.Path carries the target IQN.
func Open(raw string, u *url.URL) (child.Device, error) {
	iqn := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || iqn == "" {
		return nil, cerrors.NewInvalidURIError(raw, "iscsi URI requires host:port and an IQN path")
	}
	return &Device{uri: raw, addr: u.Host, iqn: iqn}, nil
}

// Open dials the target, logs in against the target IQN, and fetches the
// LUN's geometry via Identify.
func (d *Device) Open(ctx context.Context) error {
	conn, err := transport.Dial(d.addr, dialTimeout)
	if err != nil {
		return cerrors.NewTransportUnavailableError(d.uri, err)
	}

	if err := conn.Login(d.iqn); err != nil {
		conn.Close()
		return cerrors.NewAuthRejectedError(d.uri, err.Error())
	}

	numBlocks, blockSize, err := conn.Identify()
	if err != nil {
		conn.Close()
		return cerrors.NewTransportUnavailableError(d.uri, err)
	}

	d.conn = conn
	d.blockSize = blockSize
	d.numBlocks = numBlocks

	logger.Debug("iscsi child connected",
		logger.ChildURI(d.uri),
		logger.IQN(d.iqn),
		logger.BlockSize(d.blockSize),
		logger.NumBlocks(d.numBlocks))

	return nil
}

// BlockSize returns the device's logical block size in bytes.
func (d *Device) BlockSize() uint32 { return d.blockSize }

// NumBlocks returns the device's capacity in blocks.
func (d *Device) NumBlocks() uint64 { return d.numBlocks }

// URI returns the URI this device was constructed from.
func (d *Device) URI() string { return d.uri }

func (d *Device) checkBounds(block uint64, buf []byte) error {
	if d.conn == nil {
		return cerrors.NewDisconnectedError(d.uri)
	}
	if len(buf)%int(d.blockSize) != 0 {
		return cerrors.NewInvalidAlignmentError(d.uri, d.blockSize)
	}
	nBlocks := uint64(len(buf)) / uint64(d.blockSize)
	if block+nBlocks > d.numBlocks {
		return cerrors.NewInvalidOffsetError(d.uri, block, d.numBlocks)
	}
	return nil
}

// ReadAt reads len(buf)/BlockSize() blocks starting at the given block.
func (d *Device) ReadAt(ctx context.Context, block uint64, buf []byte) error {
	if err := d.checkBounds(block, buf); err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok {
		d.conn.SetDeadline(dl)
	}
	if err := d.conn.Read(block, buf); err != nil {
		return cerrors.NewIOError(d.uri, err)
	}
	return nil
}

// WriteAt writes len(buf)/BlockSize() blocks starting at the given block.
func (d *Device) WriteAt(ctx context.Context, block uint64, buf []byte) error {
	if err := d.checkBounds(block, buf); err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok {
		d.conn.SetDeadline(dl)
	}
	if err := d.conn.Write(block, buf); err != nil {
		return cerrors.NewIOError(d.uri, err)
	}
	return nil
}

// Flush issues a flush request over the transport session.
func (d *Device) Flush(ctx context.Context) error {
	if d.conn == nil {
		return cerrors.NewDisconnectedError(d.uri)
	}
	if err := d.conn.Flush(); err != nil {
		return cerrors.NewIOError(d.uri, err)
	}
	return nil
}

// Reset closes the transport session without forgetting geometry, so a
// later Open reconnects and re-logs-in against the same IQN.
func (d *Device) Reset(ctx context.Context) error {
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	if err != nil {
		return cerrors.NewIOError(d.uri, err)
	}
	return nil
}

// Close releases the transport session permanently.
func (d *Device) Close(ctx context.Context) error {
	return d.Reset(ctx)
}

// AllocDMA allocates a page-aligned buffer sized for nBlocks of this
// device's block size.
func (d *Device) AllocDMA(nBlocks int) (*child.DMABuffer, error) {
	bs := d.blockSize
	if bs == 0 {
		return nil, fmt.Errorf("iscsi device %s not open", d.uri)
	}
	return child.NewDMABuffer(nBlocks * int(bs))
}
