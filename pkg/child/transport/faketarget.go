package transport

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
)

// FakeTarget is an in-memory server speaking this package's wire protocol
// against a backing byte slice, standing in for a real NVMe-oF/iSCSI
// target in tests the same way the metadata store's in-memory backend
// stands in for postgres/badger.
type FakeTarget struct {
	mu        sync.Mutex
	ln        net.Listener
	data      []byte
	blockSize uint32
	rejectLogin bool
}

// NewFakeTarget starts a FakeTarget backed by a zeroed buffer of
// numBlocks*blockSize bytes, listening on an ephemeral local port.
func NewFakeTarget(numBlocks uint64, blockSize uint32) (*FakeTarget, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	ft := &FakeTarget{
		ln:        ln,
		data:      make([]byte, numBlocks*uint64(blockSize)),
		blockSize: blockSize,
	}
	go ft.acceptLoop()
	return ft, nil
}

// Addr returns the listener's address, suitable for a nvmf:// or iscsi://
// URI's host:port component.
func (ft *FakeTarget) Addr() string {
	return ft.ln.Addr().String()
}

// RejectLogin makes every subsequent login attempt fail, simulating an
// unauthorized NQN/IQN.
func (ft *FakeTarget) RejectLogin(reject bool) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.rejectLogin = reject
}

// Close stops accepting connections.
func (ft *FakeTarget) Close() error {
	return ft.ln.Close()
}

func (ft *FakeTarget) acceptLoop() {
	for {
		conn, err := ft.ln.Accept()
		if err != nil {
			return
		}
		go ft.serve(conn)
	}
}

func (ft *FakeTarget) serve(nc net.Conn) {
	defer nc.Close()
	for {
		hdr := make([]byte, requestHeaderSize)
		if _, err := io.ReadFull(nc, hdr); err != nil {
			return
		}
		op := OpCode(hdr[0])
		block := binary.BigEndian.Uint64(hdr[1:9])
		length := binary.BigEndian.Uint32(hdr[9:13])

		var payload []byte
		if length > 0 && op != OpRead {
			payload = make([]byte, length)
			if _, err := io.ReadFull(nc, payload); err != nil {
				return
			}
		}

		switch op {
		case OpLogin:
			ft.mu.Lock()
			reject := ft.rejectLogin
			ft.mu.Unlock()
			if reject {
				writeResponse(nc, StatusAuthRejected, nil)
			} else {
				writeResponse(nc, StatusOK, nil)
			}

		case OpIdentify:
			ft.mu.Lock()
			numBlocks := uint64(len(ft.data)) / uint64(ft.blockSize)
			bs := ft.blockSize
			ft.mu.Unlock()
			resp := make([]byte, 12)
			binary.BigEndian.PutUint64(resp[:8], numBlocks)
			binary.BigEndian.PutUint32(resp[8:12], bs)
			writeResponse(nc, StatusOK, resp)

		case OpRead:
			ft.mu.Lock()
			off := block * uint64(ft.blockSize)
			var resp []byte
			if off+uint64(length) <= uint64(len(ft.data)) {
				resp = append(resp, ft.data[off:off+uint64(length)]...)
			}
			ft.mu.Unlock()
			if resp == nil {
				writeResponse(nc, StatusError, nil)
			} else {
				writeResponse(nc, StatusOK, resp)
			}

		case OpWrite:
			ft.mu.Lock()
			off := block * uint64(ft.blockSize)
			ok := off+uint64(len(payload)) <= uint64(len(ft.data))
			if ok {
				copy(ft.data[off:], payload)
			}
			ft.mu.Unlock()
			if ok {
				writeResponse(nc, StatusOK, nil)
			} else {
				writeResponse(nc, StatusError, nil)
			}

		case OpFlush:
			writeResponse(nc, StatusOK, nil)

		default:
			writeResponse(nc, StatusError, nil)
		}
	}
}

func writeResponse(w io.Writer, status StatusCode, payload []byte) {
	hdr := make([]byte, responseHeaderSize)
	hdr[0] = byte(status)
	binary.BigEndian.PutUint32(hdr[1:5], uint32(len(payload)))
	w.Write(hdr)
	if len(payload) > 0 {
		w.Write(payload)
	}
}
