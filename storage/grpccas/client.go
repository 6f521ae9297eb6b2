package grpccas

import (
	"context"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/szdt/storage"
)

// Client is a storage.CAS backed by a remote CAS service.
//
// Replies are never trusted: Put checks the name the server assigned and Get
// re-hashes the returned bytes.
type Client struct {
	conn *grpc.ClientConn
	rpc  CASClient

	// Timeout bounds each call when non-zero.
	Timeout time.Duration
}

var _ storage.CAS = (*Client)(nil)

// DialOptions configures Dial.
type DialOptions struct {
	// Timeout, when non-zero, makes Dial wait for the connection to become
	// ready and fail if it has not within this long.
	Timeout time.Duration

	// MaxMsgBytes caps send and receive message sizes when non-zero.
	MaxMsgBytes int

	// Options are appended after the defaults.
	Options []grpc.DialOption
}

// Dial connects to the service at target. Connections are plaintext.
func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if n := opts.MaxMsgBytes; n > 0 {
		dialOpts = append(dialOpts, grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(n), grpc.MaxCallSendMsgSize(n)))
	}
	conn, err := grpc.NewClient(target, append(dialOpts, opts.Options...)...)
	if err != nil {
		return nil, fmt.Errorf("grpccas: %s: %w", target, err)
	}
	if opts.Timeout > 0 {
		if err := awaitReady(conn, opts.Timeout); err != nil {
			conn.Close()
			return nil, fmt.Errorf("grpccas: %s: %w", target, err)
		}
	}
	return &Client{conn: conn, rpc: NewCASClient(conn)}, nil
}

func awaitReady(conn *grpc.ClientConn, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	conn.Connect()
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			return nil
		}
		if !conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("not ready after %s (last state %s)", timeout, state)
		}
	}
}

// Close releases the connection. It is safe on a nil Client.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) Put(data []byte) (cid.Cid, error) {
	if c == nil || c.rpc == nil {
		return cid.Undef, storage.ErrNoBackends
	}
	var reply *wrapperspb.StringValue
	err := c.call(func(ctx context.Context) (err error) {
		reply, err = c.rpc.Put(ctx, wrapperspb.Bytes(data))
		return err
	})
	if err != nil {
		return cid.Undef, err
	}
	id, err := cid.Decode(reply.GetValue())
	if err != nil || !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}
	if want := storage.CIDOf(data); !id.Equals(want) {
		return cid.Undef, fmt.Errorf("grpccas: server named block %s, want %s: %w", id, want, storage.ErrCIDMismatch)
	}
	return id, nil
}

func (c *Client) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	var reply *wrapperspb.BytesValue
	err := c.call(func(ctx context.Context) (err error) {
		reply, err = c.rpc.Get(ctx, wrapperspb.String(id.String()))
		return err
	})
	if err != nil {
		return nil, err
	}
	data := reply.GetValue()
	if err := storage.Verify(id, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Has reports false on any transport failure.
func (c *Client) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	var reply *wrapperspb.BoolValue
	err := c.call(func(ctx context.Context) (err error) {
		reply, err = c.rpc.Has(ctx, wrapperspb.String(id.String()))
		return err
	})
	return err == nil && reply.GetValue()
}

// call runs one RPC under the client's timeout and maps its status onto the
// storage sentinels.
func (c *Client) call(fn func(context.Context) error) error {
	ctx := context.Background()
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	if err := fn(ctx); err != nil {
		return fromStatus(err)
	}
	return nil
}
