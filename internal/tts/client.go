// Package tts provides the WebSocket client for the Edge neural speech
// synthesis engine, plus the duration estimation and rate search logic built
// on top of it.
package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/linyqh/edge-tts-service/internal/core"
)

// Message paths used by the engine protocol.
const (
	pathSpeechConfig  = "speech.config"
	pathSSML          = "ssml"
	pathAudioMetadata = "audio.metadata"
	pathTurnEnd       = "turn.end"
)

const (
	headerSeparator = "\r\n\r\n"
	// Binary frames carry a big-endian header length in their first two bytes.
	binaryHeaderSize = 2
	// Audio frames exceed the library's default read limit.
	maxFrameSize = 1 << 22

	timestampLayout = "Mon Jan 02 2006 15:04:05 GMT+0000 (Coordinated Universal Time)"

	chunkBuffer = 16
)

const speechConfigBodyFmt = `{"context":{"synthesis":{"audio":{"metadataoptions":` +
	`{"sentenceBoundaryEnabled":"false","wordBoundaryEnabled":"true"},` +
	`"outputFormat":"%s"}}}}`

const ssmlBodyFmt = `<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='en-US'>` +
	`<voice name='%s'><prosody pitch='+0Hz' rate='%s' volume='%s'>%s</prosody></voice></speak>`

var ssmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Chunk is one unit of a streamed synthesis: an audio fragment, a word
// boundary event, or a terminal error. The channel is closed after the final
// chunk.
type Chunk struct {
	Audio    []byte
	Boundary *core.WordBoundary
	Err      error
}

// Client speaks the Edge readaloud WebSocket protocol. It sends a
// speech.config message enabling word boundary metadata followed by an SSML
// message, then consumes text metadata frames and binary audio frames until
// the engine signals the end of the turn.
//
// The zero transport is a plain http.Client; callers that need a specific
// outbound path (proxy rotation) pass their own client per call via
// StreamWith or SynthesizeWith.
type Client struct {
	endpoint     string
	token        string
	outputFormat string
	httpClient   *http.Client
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient sets the default HTTP client used for dialing when a call
// does not supply its own.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithOutputFormat sets the audio output format requested from the engine.
func WithOutputFormat(format string) Option {
	return func(c *Client) {
		c.outputFormat = format
	}
}

// New creates a synthesis client for the given engine endpoint and trusted
// client token.
func New(endpoint, token string, opts ...Option) *Client {
	client := &Client{
		endpoint:     endpoint,
		token:        token,
		outputFormat: "audio-24khz-48kbitrate-mono-mp3",
		httpClient:   &http.Client{},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Stream opens a synthesis stream using the client's default transport.
func (c *Client) Stream(ctx context.Context, req core.SynthesisRequest) (<-chan Chunk, error) {
	return c.StreamWith(ctx, nil, req)
}

// StreamWith opens a synthesis stream dialed through the given HTTP client
// (nil means the default transport). It returns after the handshake and both
// outbound messages have succeeded, so a returned error always predates any
// audio and the caller is free to retry on another transport. Chunks arrive
// on the returned channel until turn.end or a terminal error.
func (c *Client) StreamWith(
	ctx context.Context,
	httpClient *http.Client,
	req core.SynthesisRequest,
) (<-chan Chunk, error) {
	if req.Text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", core.ErrSynthesis)
	}

	if httpClient == nil {
		httpClient = c.httpClient
	}

	conn, err := c.dial(ctx, httpClient)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().UTC().Format(timestampLayout)

	err = conn.Write(ctx, websocket.MessageText, speechConfigMessage(timestamp, c.outputFormat))
	if err != nil {
		conn.Close(websocket.StatusInternalError, "failed to send speech.config")

		return nil, fmt.Errorf("%w: send speech.config: %v", core.ErrSynthesis, err)
	}

	err = conn.Write(ctx, websocket.MessageText, ssmlMessage(timestamp, req))
	if err != nil {
		conn.Close(websocket.StatusInternalError, "failed to send ssml")

		return nil, fmt.Errorf("%w: send ssml: %v", core.ErrSynthesis, err)
	}

	chunks := make(chan Chunk, chunkBuffer)

	go readLoop(ctx, conn, chunks)

	return chunks, nil
}

// Synthesize runs a complete, fully buffered synthesis using the client's
// default transport.
func (c *Client) Synthesize(ctx context.Context, req core.SynthesisRequest) (*core.SynthesisResult, error) {
	return c.SynthesizeWith(ctx, nil, req)
}

// SynthesizeWith runs a complete synthesis through the given HTTP client and
// buffers the entire result, as the rate search requires.
func (c *Client) SynthesizeWith(
	ctx context.Context,
	httpClient *http.Client,
	req core.SynthesisRequest,
) (*core.SynthesisResult, error) {
	chunks, err := c.StreamWith(ctx, httpClient, req)
	if err != nil {
		return nil, err
	}

	result := &core.SynthesisResult{}

	for chunk := range chunks {
		if chunk.Err != nil {
			return nil, chunk.Err
		}

		if chunk.Boundary != nil {
			result.Boundaries = append(result.Boundaries, *chunk.Boundary)
		}

		result.Audio = append(result.Audio, chunk.Audio...)
	}

	if len(result.Audio) == 0 {
		return nil, fmt.Errorf("%w: voice '%s'", core.ErrNoAudio, req.Voice)
	}

	return result, nil
}

func (c *Client) dial(ctx context.Context, httpClient *http.Client) (*websocket.Conn, error) {
	connectionID := strings.ReplaceAll(uuid.NewString(), "-", "")
	wsURL := fmt.Sprintf(
		"%s?TrustedClientToken=%s&ConnectionId=%s",
		c.endpoint,
		url.QueryEscape(c.token),
		connectionID,
	)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: dial: %v", core.ErrSynthesis, err)
	}

	conn.SetReadLimit(maxFrameSize)

	return conn, nil
}

func readLoop(ctx context.Context, conn *websocket.Conn, chunks chan<- Chunk) {
	defer close(chunks)
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			deliver(ctx, chunks, Chunk{Err: fmt.Errorf("%w: read: %v", core.ErrSynthesis, err)})

			return
		}

		switch msgType {
		case websocket.MessageText:
			headers, body := splitMessage(data)

			switch headers["Path"] {
			case pathAudioMetadata:
				boundaries, parseErr := parseMetadata(body)
				if parseErr != nil {
					deliver(ctx, chunks, Chunk{Err: parseErr})

					return
				}

				for i := range boundaries {
					if !deliver(ctx, chunks, Chunk{Boundary: &boundaries[i]}) {
						return
					}
				}
			case pathTurnEnd:
				return
			}

		case websocket.MessageBinary:
			audio, parseErr := parseBinaryMessage(data)
			if parseErr != nil {
				deliver(ctx, chunks, Chunk{Err: parseErr})

				return
			}

			if len(audio) > 0 {
				if !deliver(ctx, chunks, Chunk{Audio: audio}) {
					return
				}
			}
		}
	}
}

// deliver sends a chunk unless the consumer has gone away.
func deliver(ctx context.Context, chunks chan<- Chunk, chunk Chunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func speechConfigMessage(timestamp, outputFormat string) []byte {
	header := "X-Timestamp:" + timestamp + "\r\n" +
		"Content-Type:application/json; charset=utf-8\r\n" +
		"Path:" + pathSpeechConfig + headerSeparator

	return []byte(header + fmt.Sprintf(speechConfigBodyFmt, outputFormat))
}

func ssmlMessage(timestamp string, req core.SynthesisRequest) []byte {
	requestID := strings.ReplaceAll(uuid.NewString(), "-", "")
	header := "X-RequestId:" + requestID + "\r\n" +
		"Content-Type:application/ssml+xml\r\n" +
		"X-Timestamp:" + timestamp + "\r\n" +
		"Path:" + pathSSML + headerSeparator
	body := fmt.Sprintf(ssmlBodyFmt, req.Voice, req.Rate, req.Volume, ssmlEscaper.Replace(req.Text))

	return []byte(header + body)
}

// splitMessage separates the "Name:value" header block of a text frame from
// its body.
func splitMessage(data []byte) (map[string]string, []byte) {
	headers := make(map[string]string)

	idx := bytes.Index(data, []byte(headerSeparator))
	if idx < 0 {
		return headers, data
	}

	for _, line := range strings.Split(string(data[:idx]), "\r\n") {
		name, value, found := strings.Cut(line, ":")
		if found {
			headers[name] = strings.TrimSpace(value)
		}
	}

	return headers, data[idx+len(headerSeparator):]
}

// parseBinaryMessage strips the length-prefixed header of a binary frame and
// returns the audio payload.
func parseBinaryMessage(data []byte) ([]byte, error) {
	if len(data) < binaryHeaderSize {
		return nil, fmt.Errorf("%w: binary frame shorter than header prefix", core.ErrSynthesis)
	}

	headerLen := int(binary.BigEndian.Uint16(data[:binaryHeaderSize]))
	if binaryHeaderSize+headerLen > len(data) {
		return nil, fmt.Errorf(
			"%w: binary frame header length %d exceeds frame size %d",
			core.ErrSynthesis, headerLen, len(data),
		)
	}

	return data[binaryHeaderSize+headerLen:], nil
}

// metadataPayload mirrors the engine's audio.metadata JSON body.
type metadataPayload struct {
	Metadata []struct {
		Type string `json:"Type"`
		Data struct {
			Offset   int64 `json:"Offset"`
			Duration int64 `json:"Duration"`
			Text     struct {
				Text string `json:"Text"`
			} `json:"text"`
		} `json:"Data"`
	} `json:"Metadata"`
}

func parseMetadata(body []byte) ([]core.WordBoundary, error) {
	var payload metadataPayload

	err := json.Unmarshal(body, &payload)
	if err != nil {
		return nil, fmt.Errorf("%w: unmarshal audio metadata: %v", core.ErrSynthesis, err)
	}

	var boundaries []core.WordBoundary

	for _, entry := range payload.Metadata {
		if entry.Type != "WordBoundary" {
			continue
		}

		boundaries = append(boundaries, core.WordBoundary{
			Offset:   entry.Data.Offset,
			Duration: entry.Data.Duration,
			Text:     entry.Data.Text.Text,
		})
	}

	return boundaries, nil
}
