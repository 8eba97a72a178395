// Package objectstore_test tests the NATS object store implementation.
package objectstore_test

import (
	"context"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/linyqh/edge-tts-service/internal/core"
	"github.com/linyqh/edge-tts-service/internal/objectstore"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestServer starts an in-memory NATS server for testing purposes.
func startTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	return natsServer, natsConnection
}

func newTestStore(t *testing.T) *objectstore.NatsObjectStore {
	t.Helper()

	natsServer, natsConnection := startTestServer(t)
	t.Cleanup(natsServer.Shutdown)
	t.Cleanup(natsConnection.Close)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	signer, err := objectstore.NewSigner("http://localhost:8000", "test-secret")
	require.NoError(t, err)

	return objectstore.New(jetstreamContext, signer)
}

func TestUploadDownload(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	uploadData := []byte("fake mp3 bytes")

	err := store.Upload(ctx, "audio", "task-1.mp3", uploadData)
	require.NoError(t, err)

	downloadData, err := store.Download(ctx, "audio", "task-1.mp3")
	require.NoError(t, err)

	assert.Equal(t, uploadData, downloadData)
}

func TestUploadDownload_SeparateBuckets(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "bucket-a", "key.mp3", []byte("a")))
	require.NoError(t, store.Upload(ctx, "bucket-b", "key.mp3", []byte("b")))

	dataA, err := store.Download(ctx, "bucket-a", "key.mp3")
	require.NoError(t, err)
	dataB, err := store.Download(ctx, "bucket-b", "key.mp3")
	require.NoError(t, err)

	assert.Equal(t, []byte("a"), dataA)
	assert.Equal(t, []byte("b"), dataB)
}

func TestDownload_MissingObject(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	_, err := store.Download(context.Background(), "audio", "no-such-object.mp3")
	require.ErrorIs(t, err, core.ErrObjectNotFound)
}

func TestSigner_RoundTrip(t *testing.T) {
	t.Parallel()

	signer, err := objectstore.NewSigner("http://localhost:8000", "test-secret")
	require.NoError(t, err)

	link, err := signer.PresignedGetURL("audio", "task-1.mp3", time.Hour)
	require.NoError(t, err)

	assert.Contains(t, link, "http://localhost:8000/download/audio/task-1.mp3?expires=")
	assert.Contains(t, link, "&signature=")

	parsed, err := url.Parse(link)
	require.NoError(t, err)

	expires, err := strconv.ParseInt(parsed.Query().Get("expires"), 10, 64)
	require.NoError(t, err)

	assert.True(t, signer.Verify("audio", "task-1.mp3", expires, parsed.Query().Get("signature")))
}

func TestSigner_VerifyRejectsTampering(t *testing.T) {
	t.Parallel()

	signer, err := objectstore.NewSigner("http://localhost:8000", "test-secret")
	require.NoError(t, err)

	expires := time.Now().Add(time.Hour).Unix()

	// A signature for one object must not open another.
	assert.False(t, signer.Verify("audio", "other.mp3", expires, "bogus"))
}

func TestSigner_VerifyRejectsExpired(t *testing.T) {
	t.Parallel()

	signer, err := objectstore.NewSigner("http://localhost:8000", "test-secret")
	require.NoError(t, err)

	link, err := signer.PresignedGetURL("audio", "task-1.mp3", -time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, link)

	expired := time.Now().Add(-time.Minute).Unix()
	assert.False(t, signer.Verify("audio", "task-1.mp3", expired, "anything"))
}

func TestNewSigner_EmptySecret(t *testing.T) {
	t.Parallel()

	_, err := objectstore.NewSigner("http://localhost:8000", "")
	require.ErrorIs(t, err, objectstore.ErrEmptySigningSecret)
}
