package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// These keys are designed to be consistent across the reactor, reconfiguration,
// rebuild, publish, and RPC layers of the Nexus core.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // request correlation ID, set at the RPC surface
	KeySpanID  = "span_id"  // sub-operation correlation ID

	// ========================================================================
	// Nexus & Child Identity
	// ========================================================================
	KeyNexus     = "nexus"      // Nexus name
	KeyNexusUUID = "nexus_uuid" // Nexus UUID
	KeyChildURI  = "child_uri"  // child device URI: aio://, uring://, pcie://, nvmf://, iscsi://
	KeyScheme    = "scheme"     // child URI scheme
	KeyReactor   = "reactor"    // reactor index
	KeyOperation = "operation"  // RPC or core operation name

	// ========================================================================
	// State & Status
	// ========================================================================
	KeyState     = "state"      // child or Nexus state name
	KeyFromState = "from_state" // state machine transition source
	KeyToState   = "to_state"   // state machine transition target
	KeyEvent     = "event"      // state machine event name
	KeyStatus    = "status"     // operation status code
	KeyStatusMsg = "status_msg" // human-readable status message

	// ========================================================================
	// I/O Operations
	// ========================================================================
	KeyBlock        = "block"         // starting block/segment number
	KeyBlockCount   = "block_count"   // number of blocks in the I/O
	KeyOffset       = "offset"        // byte offset for read/write operations
	KeySize         = "size"          // byte length of the I/O
	KeyBytesRead    = "bytes_read"    // actual bytes read
	KeyBytesWritten = "bytes_written" // actual bytes written
	KeyBlockSize    = "block_size"    // device block size
	KeyNumBlocks    = "num_blocks"    // device capacity in blocks

	// ========================================================================
	// Rebuild
	// ========================================================================
	KeyRebuildJob      = "rebuild_job"      // rebuild job identifier
	KeySrcChild        = "src_child"        // rebuild source child URI
	KeyDstChild        = "dst_child"        // rebuild destination child URI
	KeyCursor          = "cursor"           // rebuild cursor position (blocks)
	KeyProgressPercent = "progress_percent" // rebuild progress, 0-100
	KeySegmentSize     = "segment_size"     // rebuild copy segment size in blocks

	// ========================================================================
	// Publish / Transport
	// ========================================================================
	KeyProtocol    = "protocol"     // publish protocol: nvmf, iscsi, local
	KeyTargetAddr  = "target_addr"  // listener/target bind address
	KeyNQN         = "nqn"          // NVMe-oF qualified name
	KeyIQN         = "iqn"          // iSCSI qualified name
	KeySubsystem   = "subsystem"    // transport subsystem identifier

	// ========================================================================
	// RPC / Auth
	// ========================================================================
	KeyMethod    = "method"     // HTTP method
	KeyPath      = "path"       // HTTP request path
	KeyRequestID = "request_id" // RPC request ID
	KeyRemoteIP  = "remote_ip"  // RPC client IP address
	KeySubject   = "subject"    // JWT subject/principal

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // operation duration in milliseconds
	KeyError      = "error"       // error message
	KeyErrorCode  = "error_code"  // taxonomy error code
	KeyAttempt    = "attempt"     // retry attempt number
	KeyMaxRetries = "max_retries" // maximum retry attempts
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for the request trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for the sub-operation span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Nexus returns a slog.Attr for the Nexus name
func Nexus(name string) slog.Attr {
	return slog.String(KeyNexus, name)
}

// NexusUUID returns a slog.Attr for the Nexus UUID
func NexusUUID(id string) slog.Attr {
	return slog.String(KeyNexusUUID, id)
}

// ChildURI returns a slog.Attr for a child device URI
func ChildURI(uri string) slog.Attr {
	return slog.String(KeyChildURI, uri)
}

// Scheme returns a slog.Attr for a child URI scheme
func Scheme(scheme string) slog.Attr {
	return slog.String(KeyScheme, scheme)
}

// Reactor returns a slog.Attr for the reactor index
func Reactor(id int) slog.Attr {
	return slog.Int(KeyReactor, id)
}

// Operation returns a slog.Attr for the operation name
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// State returns a slog.Attr for a state name
func State(s string) slog.Attr {
	return slog.String(KeyState, s)
}

// Transition returns slog.Attrs describing a state machine transition
func Transition(from, to, event string) []slog.Attr {
	return []slog.Attr{
		slog.String(KeyFromState, from),
		slog.String(KeyToState, to),
		slog.String(KeyEvent, event),
	}
}

// Status returns a slog.Attr for operation status code
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// StatusMsg returns a slog.Attr for a human-readable status message
func StatusMsg(msg string) slog.Attr {
	return slog.String(KeyStatusMsg, msg)
}

// Block returns a slog.Attr for a starting block number
func Block(b uint64) slog.Attr {
	return slog.Uint64(KeyBlock, b)
}

// BlockCount returns a slog.Attr for a block count
func BlockCount(n uint32) slog.Attr {
	return slog.Any(KeyBlockCount, n)
}

// Offset returns a slog.Attr for a byte offset
func Offset(off uint64) slog.Attr {
	return slog.Uint64(KeyOffset, off)
}

// Size returns a slog.Attr for a byte length
func Size(s uint64) slog.Attr {
	return slog.Uint64(KeySize, s)
}

// BytesRead returns a slog.Attr for actual bytes read
func BytesRead(n int) slog.Attr {
	return slog.Int(KeyBytesRead, n)
}

// BytesWritten returns a slog.Attr for actual bytes written
func BytesWritten(n int) slog.Attr {
	return slog.Int(KeyBytesWritten, n)
}

// BlockSize returns a slog.Attr for a device block size
func BlockSize(n uint32) slog.Attr {
	return slog.Any(KeyBlockSize, n)
}

// NumBlocks returns a slog.Attr for a device capacity in blocks
func NumBlocks(n uint64) slog.Attr {
	return slog.Uint64(KeyNumBlocks, n)
}

// RebuildJob returns a slog.Attr for a rebuild job identifier
func RebuildJob(id string) slog.Attr {
	return slog.String(KeyRebuildJob, id)
}

// SrcChild returns a slog.Attr for a rebuild source child URI
func SrcChild(uri string) slog.Attr {
	return slog.String(KeySrcChild, uri)
}

// DstChild returns a slog.Attr for a rebuild destination child URI
func DstChild(uri string) slog.Attr {
	return slog.String(KeyDstChild, uri)
}

// Cursor returns a slog.Attr for a rebuild cursor position
func Cursor(pos uint64) slog.Attr {
	return slog.Uint64(KeyCursor, pos)
}

// ProgressPercent returns a slog.Attr for rebuild progress
func ProgressPercent(pct float64) slog.Attr {
	return slog.Float64(KeyProgressPercent, pct)
}

// SegmentSize returns a slog.Attr for the rebuild copy segment size
func SegmentSize(n uint32) slog.Attr {
	return slog.Any(KeySegmentSize, n)
}

// Protocol returns a slog.Attr for the publish protocol
func Protocol(proto string) slog.Attr {
	return slog.String(KeyProtocol, proto)
}

// TargetAddr returns a slog.Attr for a listener bind address
func TargetAddr(addr string) slog.Attr {
	return slog.String(KeyTargetAddr, addr)
}

// NQN returns a slog.Attr for an NVMe-oF qualified name
func NQN(nqn string) slog.Attr {
	return slog.String(KeyNQN, nqn)
}

// IQN returns a slog.Attr for an iSCSI qualified name
func IQN(iqn string) slog.Attr {
	return slog.String(KeyIQN, iqn)
}

// Subsystem returns a slog.Attr for a transport subsystem identifier
func Subsystem(name string) slog.Attr {
	return slog.String(KeySubsystem, name)
}

// Method returns a slog.Attr for an HTTP method
func Method(m string) slog.Attr {
	return slog.String(KeyMethod, m)
}

// Path returns a slog.Attr for an HTTP request path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// RequestID returns a slog.Attr for an RPC request ID
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// RemoteIP returns a slog.Attr for the RPC client IP
func RemoteIP(addr string) slog.Attr {
	return slog.String(KeyRemoteIP, addr)
}

// Subject returns a slog.Attr for the JWT subject/principal
func Subject(sub string) slog.Attr {
	return slog.String(KeySubject, sub)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a taxonomy error code
func ErrorCode(code string) slog.Attr {
	return slog.String(KeyErrorCode, code)
}

// Attempt returns a slog.Attr for a retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for maximum retry attempts
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}
