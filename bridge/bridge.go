package bridge

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	pgwasm "github.com/driftdb/pgwasm"
	"github.com/driftdb/pgwasm/errors"
	"github.com/driftdb/pgwasm/wire"
)

// startupRoundLimit bounds the authentication exchange so a confused engine
// cannot hold Open in an infinite challenge loop.
const startupRoundLimit = 8

// Config holds connection parameters for Open.
type Config struct {
	// Database and User populate the startup parameters. User defaults to
	// "postgres"; Database defaults to User.
	Database string
	User     string

	// Password answers a clear-text or MD5 authentication challenge.
	Password string

	// Params are additional startup parameters (application_name, ...).
	Params map[string]string

	// OnNotice observes notice messages; they never abort a request.
	OnNotice func(wire.ErrorFields)

	// OnNotification observes asynchronous notification messages.
	OnNotification func(wire.NotificationResponse)

	// Logger receives bridge-internal fault diagnostics. nil means no-op.
	Logger *zap.Logger
}

// Bridge drives one embedded engine over the simulated stream. All exported
// methods are safe for concurrent use; requests are serialized FIFO onto the
// engine's single execution context.
type Bridge struct {
	eng    pgwasm.Engine
	ser    serializer
	stream *stream
	writer *wire.Writer
	logger *zap.Logger
	cfg    Config

	// msgs collects the decoded messages of the request in flight.
	// Touched only while the serializer is held.
	msgs []wire.Message

	// stateMu guards the session state below: onMessage updates it while a
	// request is in flight, and the accessors read it from any goroutine.
	stateMu sync.RWMutex

	// Backend identity captured during startup, for out-of-band cancel.
	backendPID uint32
	secretKey  uint32

	// paramStatus holds the engine-reported run-time parameters.
	paramStatus map[string]string

	closed bool
}

// Open binds a bridge to an engine and runs the connection startup exchange
// to the first ready-for-query. The bridge owns the engine from here on;
// Close releases both.
func Open(ctx context.Context, eng pgwasm.Engine, cfg Config) (*Bridge, error) {
	if cfg.User == "" {
		cfg.User = "postgres"
	}
	if cfg.Database == "" {
		cfg.Database = cfg.User
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	b := &Bridge{
		eng:         eng,
		writer:      wire.NewWriter(),
		logger:      cfg.Logger,
		cfg:         cfg,
		paramStatus: make(map[string]string),
	}
	b.stream = newStream(b.onMessage)

	if err := eng.BindIO(b.stream); err != nil {
		return nil, err
	}

	err := b.ser.runExclusive(ctx, func() error {
		return b.startup(ctx)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bridge) onMessage(m wire.Message) {
	switch msg := m.(type) {
	case wire.NoticeResponse:
		if b.cfg.OnNotice != nil {
			b.cfg.OnNotice(msg.Fields)
		}
	case wire.NotificationResponse:
		if b.cfg.OnNotification != nil {
			b.cfg.OnNotification(msg)
		}
	case wire.ParameterStatus:
		b.stateMu.Lock()
		b.paramStatus[msg.Name] = msg.Value
		b.stateMu.Unlock()
	case wire.BackendKeyData:
		b.stateMu.Lock()
		b.backendPID = msg.ProcessID
		b.secretKey = msg.SecretKey
		b.stateMu.Unlock()
	}
	b.msgs = append(b.msgs, m)
}

// request drives one blocking engine interaction with out as the outbound
// buffer and returns the messages the engine emitted. Must be called with
// the serializer held.
func (b *Bridge) request(ctx context.Context, out []byte) ([]wire.Message, error) {
	if b.closed {
		return nil, errors.Closed(errors.PhaseBridge, "bridge")
	}
	if len(out) == 0 {
		return nil, errors.InvalidData(errors.PhaseBridge, "empty outbound buffer")
	}

	b.msgs = b.msgs[:0]
	b.stream.beginRequest(out)
	defer b.stream.endRequest()

	if err := b.eng.ServeOne(ctx, len(out), out[0]); err != nil {
		return nil, err
	}
	if b.stream.fault != nil {
		b.logger.Error("bridge fault during request", zap.Error(b.stream.fault))
		return nil, b.stream.fault
	}
	if b.stream.decodeErr != nil {
		return nil, b.stream.decodeErr
	}
	if n := b.stream.leftover(); n > 0 {
		b.logger.Error("engine ended interaction mid-frame", zap.Int("bytes", n))
		return nil, errors.Protocol(errors.PhaseBridge, "engine ended interaction with %d undecoded bytes", n)
	}
	return b.msgs, nil
}

// startup performs the startup/authentication exchange. Must be called with
// the serializer held.
func (b *Bridge) startup(ctx context.Context) error {
	params := map[string]string{
		"user":     b.cfg.User,
		"database": b.cfg.Database,
	}
	keys := []string{"user", "database"}
	for k, v := range b.cfg.Params {
		if _, dup := params[k]; dup {
			continue
		}
		params[k] = v
		keys = append(keys, k)
	}
	sort.Strings(keys[2:])

	out := b.writer.Reset().Startup(keys, params)

	for round := 0; round < startupRoundLimit; round++ {
		msgs, err := b.request(ctx, out)
		if err != nil {
			return err
		}
		out = nil

		for _, m := range msgs {
			switch msg := m.(type) {
			case wire.AuthenticationOk, wire.ParameterStatus, wire.BackendKeyData:
				// Recorded by onMessage; nothing more to do.
			case wire.AuthenticationCleartextPassword:
				out = b.writer.Reset().Password(b.cfg.Password)
			case wire.AuthenticationMD5Password:
				out = b.writer.Reset().Password(md5Password(b.cfg.User, b.cfg.Password, msg.Salt))
			case wire.AuthenticationSASL:
				return errors.Unsupported(errors.PhaseStartup, "SASL authentication")
			case wire.ErrorResponse:
				return &ServerError{Fields: msg.Fields}
			case wire.ReadyForQuery:
				return nil
			}
		}
		if out == nil {
			return errors.Protocol(errors.PhaseStartup, "engine ended startup round without ready-for-query")
		}
	}
	return errors.Protocol(errors.PhaseStartup, "startup did not settle in %d rounds", startupRoundLimit)
}

// md5Password builds the md5 challenge response:
// "md5" + hex(md5(hex(md5(password + user)) + salt)).
func md5Password(user, password string, salt [4]byte) string {
	inner := md5.Sum([]byte(password + user))
	outer := md5.Sum(append([]byte(hex.EncodeToString(inner[:])), salt[:]...))
	return "md5" + hex.EncodeToString(outer[:])
}

// Query runs one statement and materializes its result.
func (b *Bridge) Query(ctx context.Context, sql string) (*Result, error) {
	var res *Result
	err := b.ser.runExclusive(ctx, func() error {
		var err error
		res, err = b.queryLocked(ctx, sql)
		return err
	})
	return res, err
}

// Exec runs one statement and discards any rows.
func (b *Bridge) Exec(ctx context.Context, sql string) error {
	return b.ser.runExclusive(ctx, func() error {
		_, err := b.queryLocked(ctx, sql)
		return err
	})
}

// QueryArgs runs one parameterized statement through the prepared-statement
// flow: parse, bind, describe, execute, sync in a single pipelined round.
// Arguments are bound as text; nil binds SQL NULL.
func (b *Bridge) QueryArgs(ctx context.Context, sql string, args ...any) (*Result, error) {
	var res *Result
	err := b.ser.runExclusive(ctx, func() error {
		values := make([][]byte, len(args))
		formats := make([]int16, len(args))
		for i, arg := range args {
			values[i] = encodeArg(arg)
		}

		b.writer.Reset()
		b.writer.Parse("", sql, nil)
		b.writer.Bind("", "", formats, values, nil)
		b.writer.Describe(wire.DescribePortal, "")
		b.writer.Execute("", 0)
		out := b.writer.Sync()

		msgs, err := b.request(ctx, out)
		if err != nil {
			return err
		}
		res, err = materialize(msgs)
		return err
	})
	return res, err
}

// encodeArg renders one bind argument in the text format.
func encodeArg(arg any) []byte {
	switch v := arg.(type) {
	case nil:
		return nil
	case []byte:
		return append([]byte(`\x`), hex.EncodeToString(v)...)
	case string:
		return []byte(v)
	case bool:
		if v {
			return []byte("t")
		}
		return []byte("f")
	case time.Time:
		return []byte(v.Format("2006-01-02 15:04:05.999999999-07"))
	case float32:
		return strconv.AppendFloat(nil, float64(v), 'g', -1, 32)
	case float64:
		return strconv.AppendFloat(nil, v, 'g', -1, 64)
	default:
		return fmt.Append(nil, v)
	}
}

func (b *Bridge) queryLocked(ctx context.Context, sql string) (*Result, error) {
	msgs, err := b.request(ctx, b.writer.Reset().Query(sql))
	if err != nil {
		return nil, err
	}
	return materialize(msgs)
}

// Tx runs statements inside one transaction. Its methods reuse the turn the
// surrounding Transaction call already holds; the whole transaction is a
// single critical section on the engine.
type Tx struct {
	b   *Bridge
	ctx context.Context
}

// Query runs a statement inside the transaction.
func (tx *Tx) Query(sql string) (*Result, error) {
	return tx.b.queryLocked(tx.ctx, sql)
}

// Exec runs a statement inside the transaction, discarding rows.
func (tx *Tx) Exec(sql string) error {
	_, err := tx.b.queryLocked(tx.ctx, sql)
	return err
}

// Transaction wraps fn in BEGIN/COMMIT, rolling back if fn or any of its
// statements fail. The rollback error, if any, is subordinate to fn's.
func (b *Bridge) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	return b.ser.runExclusive(ctx, func() error {
		if _, err := b.queryLocked(ctx, "BEGIN"); err != nil {
			return err
		}
		if err := fn(&Tx{b: b, ctx: ctx}); err != nil {
			if _, rbErr := b.queryLocked(ctx, "ROLLBACK"); rbErr != nil {
				b.logger.Error("rollback failed", zap.Error(rbErr))
			}
			return err
		}
		_, err := b.queryLocked(ctx, "COMMIT")
		return err
	})
}

// ParameterStatus returns the engine-reported value of a run-time parameter
// collected so far (server_version, client_encoding, ...).
func (b *Bridge) ParameterStatus(name string) string {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.paramStatus[name]
}

// BackendKeyData returns the process id and secret key the engine issued
// during startup, as used by the out-of-band cancel request format.
func (b *Bridge) BackendKeyData() (processID, secretKey uint32) {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.backendPID, b.secretKey
}

// Close sends the termination message and releases the engine handle.
func (b *Bridge) Close(ctx context.Context) error {
	return b.ser.runExclusive(ctx, func() error {
		if b.closed {
			return nil
		}
		// The engine owes no reply to a terminate; a serve error here only
		// means it tore the stream down early.
		if _, err := b.request(ctx, b.writer.Reset().Terminate()); err != nil {
			b.logger.Debug("terminate exchange", zap.Error(err))
		}
		b.closed = true
		return b.eng.Close(ctx)
	})
}
