package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/xtding233/seedpool/internal/config"
	"github.com/xtding233/seedpool/internal/drbg"
	"github.com/xtding233/seedpool/internal/entropy"
	"github.com/xtding233/seedpool/internal/server"
)

const testPolicy = `
version: "1"
generator:
  algorithm: chacha20
  max_request_bytes: 4096
reseed:
  bytes: 1048576
  requests: 1024
`

func writePolicy(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "policy"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "policy", name+".yaml"), []byte(body), 0o644))
}

func testEnv(dir string) config.ServerEnv {
	return config.ServerEnv{
		ConfigDir:   dir,
		Profile:     "default",
		SeedTimeout: 300 * time.Millisecond,
	}
}

func fixedSource(seeds int) entropy.Source {
	b := make([]byte, drbg.SeedBytes*seeds)
	for i := range b {
		b[i] = byte(i * 31)
	}
	return entropy.NewFixedSource(b)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("bogus", true, &buf)
	l.Debug("hidden")
	l.Info("shown", "k", "v")
	require.NotContains(t, buf.String(), "hidden")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "shown", line["@message"])
	require.Equal(t, "v", line["k"])
}

func TestBuildSource(t *testing.T) {
	dev := filepath.Join(t.TempDir(), "hwrng")
	noise := make([]byte, 4096)
	_, err := drbg.NewFast(1).Read(noise)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dev, noise, 0o600))

	params := config.Normalize(config.RawConfig{})
	params.Sources = []config.SourceConfig{
		{Name: "os", Kind: config.KindOS, Required: true},
		{Name: "dev", Kind: config.KindFile, Path: dev},
		{Name: "gone", Kind: config.KindFile, Path: filepath.Join(t.TempDir(), "missing")},
	}
	pool, err := BuildSource(params, hclog.NewNullLogger(), nil)
	require.NoError(t, err)

	seed, err := entropy.Gather(context.Background(), pool, 64)
	require.NoError(t, err)
	require.Len(t, seed, 64)

	params.Sources = []config.SourceConfig{{Name: "x", Kind: "dice"}}
	_, err = BuildSource(params, nil, nil)
	require.ErrorContains(t, err, "unknown kind")
}

func TestNewSeedsFromInjectedSource(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "default", testPolicy)

	a, err := New(context.Background(), Options{Env: testEnv(dir), Logger: hclog.NewNullLogger(), Source: fixedSource(1)})
	require.NoError(t, err)
	require.Equal(t, "chacha20", a.Params().Algorithm)
	require.Equal(t, 4096, a.Service().MaxRequestBytes())

	st := a.Service().Stats()
	require.Equal(t, drbg.ChaCha20, st.Algorithm)
	require.NotEmpty(t, st.ID)
}

func TestNewFailsClosedWithoutEntropy(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "default", testPolicy)

	start := time.Now()
	_, err := New(context.Background(), Options{Env: testEnv(dir), Logger: hclog.NewNullLogger(), Source: fixedSource(0)})
	require.ErrorIs(t, err, entropy.ErrSourceUnavailable)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestNewRejectsBadPolicy(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "default", "generator:\n  algorithm: pcg\n")
	_, err := New(context.Background(), Options{Env: testEnv(dir), Logger: hclog.NewNullLogger(), Source: fixedSource(1)})
	require.ErrorContains(t, err, "load policy")

	env := testEnv(dir)
	env.ConfigDir = t.TempDir()
	_, err = New(context.Background(), Options{Env: env, Logger: hclog.NewNullLogger(), Source: fixedSource(1)})
	require.ErrorIs(t, err, os.ErrNotExist)
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return lis
}

func openFDs(t *testing.T) int {
	t.Helper()
	fds, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skip("no /proc/self/fd")
	}
	return len(fds)
}

func TestNewHoldsNoWatcher(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "default", testPolicy)
	env := testEnv(dir)
	env.WatchPolicy = true

	// start the network poller so it is not counted below
	listen(t).Close()
	before := openFDs(t)
	_, err := New(context.Background(), Options{Env: env, Logger: hclog.NewNullLogger(), Source: fixedSource(1)})
	require.NoError(t, err)
	require.Equal(t, before, openFDs(t), "an App that never serves must not keep descriptors open")
}

func TestServeFailsWhenPolicyDirIsGone(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "default", testPolicy)
	env := testEnv(dir)
	env.WatchPolicy = true

	a, err := New(context.Background(), Options{Env: env, Logger: hclog.NewNullLogger(), Source: fixedSource(1)})
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "policy")))

	httpLis, grpcLis := listen(t), listen(t)
	err = a.Serve(context.Background(), httpLis, grpcLis)
	require.ErrorContains(t, err, "watch policy")
	_, err = net.Dial("tcp", httpLis.Addr().String())
	require.Error(t, err)
}

func TestServeAndReload(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "default", testPolicy)
	env := testEnv(dir)
	env.WatchPolicy = true

	a, err := New(context.Background(), Options{Env: env, Logger: hclog.NewNullLogger(), Source: fixedSource(4)})
	require.NoError(t, err)

	httpLis, grpcLis := listen(t), listen(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, httpLis, grpcLis) }()

	base := "http://" + httpLis.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	conn, err := grpc.NewClient(grpcLis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	rpcCtx, rpcCancel := context.WithTimeout(ctx, 5*time.Second)
	defer rpcCancel()
	out, err := server.NewClient(conn).Bytes(rpcCtx, 24)
	require.NoError(t, err)
	require.Len(t, out, 24)

	oldID := a.Service().Stats().ID
	writePolicy(t, dir, "default", `
version: "2"
generator:
  algorithm: hmac-sha256
  max_request_bytes: 64
`)
	require.Eventually(t, func() bool {
		return a.Params().Version == "2"
	}, 5*time.Second, 20*time.Millisecond)
	st := a.Service().Stats()
	require.NotEqual(t, oldID, st.ID)
	require.Equal(t, drbg.HMACSHA256, st.Algorithm)
	require.Equal(t, 64, a.Service().MaxRequestBytes())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop")
	}
}
