package grpccas

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"xdao.co/szdt/storage"
	"xdao.co/szdt/storage/localfs"
	"xdao.co/szdt/storage/testkit"
)

// serve starts a CAS service over an in-memory listener and returns a client.
func serve(t *testing.T, backend storage.CAS) *Client {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterCASServer(srv, &Server{CAS: backend})
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.DialContext(ctx) }
	client, err := Dial("passthrough:///bufnet", DialOptions{
		Options: []grpc.DialOption{grpc.WithContextDialer(dialer)},
	})
	require.NoError(t, err)
	client.Timeout = 2 * time.Second
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newLocal(t *testing.T) storage.CAS {
	t.Helper()
	cas, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	return cas
}

func TestGRPCCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return serve(t, newLocal(t))
	})
}

func TestGRPCCAS_LocalFS_RoundTrip(t *testing.T) {
	client := serve(t, newLocal(t))

	payload := []byte("hello grpccas")
	id, err := client.Put(payload)
	require.NoError(t, err)
	require.True(t, id.Defined())
	require.True(t, client.Has(id))

	got, err := client.Get(id)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

// lyingCAS answers every Get with the same bytes.
type lyingCAS struct {
	storage.CAS
	body []byte
}

func (l lyingCAS) Get(cid.Cid) ([]byte, error) { return l.body, nil }

func TestGRPCCAS_ServerRejectsWrongBytes(t *testing.T) {
	client := serve(t, lyingCAS{CAS: newLocal(t), body: []byte("not it")})
	_, err := client.Get(storage.CIDOf([]byte("wanted")))
	require.ErrorIs(t, err, storage.ErrCIDMismatch)
}

func TestStatusMapping(t *testing.T) {
	for _, err := range []error{storage.ErrNotFound, storage.ErrInvalidCID, storage.ErrCIDMismatch, storage.ErrImmutable} {
		require.Equal(t, err, fromStatus(toStatus(err)))
	}
	require.Equal(t, codes.Internal, status.Code(toStatus(context.Canceled)))
	require.Nil(t, toStatus(nil))
}

func TestParseSettings(t *testing.T) {
	s, err := parseSettings(map[string]string{
		TargetKey:      "localhost:7070",
		TimeoutKey:     "3s",
		MaxMsgBytesKey: "1048576",
	})
	require.NoError(t, err)
	require.Equal(t, "localhost:7070", s.target)
	require.Equal(t, 5*time.Second, s.dialTimeout)
	require.Equal(t, 3*time.Second, s.timeout)
	require.Equal(t, 1<<20, s.maxMsgBytes)

	_, err = parseSettings(map[string]string{TimeoutKey: "soon"})
	require.Error(t, err)

	_, _, err = open(settings{})
	require.Error(t, err)
}

func TestDialWaitsForReady(t *testing.T) {
	refuse := func(context.Context, string) (net.Conn, error) { return nil, errors.New("refused") }
	_, err := Dial("passthrough:///nowhere", DialOptions{
		Timeout: 200 * time.Millisecond,
		Options: []grpc.DialOption{grpc.WithContextDialer(refuse)},
	})
	require.ErrorContains(t, err, "not ready")

	var nilClient *Client
	require.NoError(t, nilClient.Close())
	_, err = nilClient.Put([]byte("x"))
	require.ErrorIs(t, err, storage.ErrNoBackends)
}
