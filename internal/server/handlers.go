package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/linyqh/edge-tts-service/internal/core"
	"github.com/linyqh/edge-tts-service/internal/orchestrator"
	"github.com/linyqh/edge-tts-service/internal/tts"
)

const (
	audioContentType = "audio/mpeg"

	defaultRate   = 1.0
	defaultVolume = "+0%"
	defaultWeight = 1.0
)

func (s *Server) handleHealth(c *gin.Context) {
	response := gin.H{"status": "healthy"}

	if s.opts.NATSConnected != nil {
		response["nats_connected"] = s.opts.NATSConnected()
	}

	c.JSON(http.StatusOK, response)
}

// handleTTS synthesizes speech for one request. Without a duration target the
// audio is relayed live, chunk by chunk; with max_duration the result must be
// buffered for the rate search, so the whole file is sent at once.
func (s *Server) handleTTS(c *gin.Context) {
	text := c.Query("text")
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text parameter is required"})

		return
	}

	voice := c.DefaultQuery("voice_name", s.opts.DefaultVoice)
	volume := normalizeVolume(c.Query("voice_volume"))

	rate, err := floatQuery(c, "voice_rate", defaultRate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	maxDuration, err := floatQuery(c, "max_duration", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	weight, err := floatQuery(c, "weight", defaultWeight)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	if maxDuration > 0 {
		s.serveRateTargetedTTS(c, text, voice, volume, maxDuration, weight)

		return
	}

	req := core.SynthesisRequest{
		Text:   text,
		Voice:  voice,
		Rate:   tts.ConvertRateToPercent(rate),
		Volume: volume,
	}

	c.Header("Content-Type", audioContentType)

	err = s.streamer.StreamTo(c.Request.Context(), req, flushWriter{c.Writer})
	if err != nil {
		if c.Writer.Written() {
			// Bytes are already on the wire; all we can do is cut the
			// connection short.
			s.log.Error("Live synthesis stream aborted: %v", err)
			c.Abort()

			return
		}

		s.renderSynthesisError(c, err)
	}
}

func (s *Server) serveRateTargetedTTS(
	c *gin.Context, text, voice, volume string, maxDuration, weight float64,
) {
	search := &tts.RateSearch{Synth: s.synth, MaxIterations: tts.DefaultMaxIterations}

	result, err := search.FindRate(c.Request.Context(), tts.RateSearchRequest{
		Text:           text,
		Voice:          voice,
		Volume:         volume,
		TargetDuration: maxDuration,
		Weight:         weight,
	})
	if err != nil {
		s.renderSynthesisError(c, err)

		return
	}

	c.Header("X-Voice-Rate", fmt.Sprintf("%.2f", result.Rate))
	c.Header("X-Audio-Duration", fmt.Sprintf("%.2f", result.Duration))
	c.Data(http.StatusOK, audioContentType, result.Audio)
}

func (s *Server) handleCreateTask(c *gin.Context) {
	voiceRate, err := floatQuery(c, "voice_rate", defaultRate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	maxDuration, err := floatQuery(c, "max_duration", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	weight, err := floatQuery(c, "weight", defaultWeight)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	req := orchestrator.SubmitRequest{
		Text:          c.Query("text"),
		VoiceName:     c.DefaultQuery("voice_name", s.opts.DefaultVoice),
		VoiceRate:     voiceRate,
		VoiceVolume:   normalizeVolume(c.Query("voice_volume")),
		MP3GainParams: c.Query("mp3gain_params"),
		MaxDuration:   maxDuration,
		Weight:        weight,
		BucketName:    c.Query("bucket_name"),
		DirectoryName: c.Query("directory_name"),
	}

	taskID, err := s.tasks.Submit(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrQueueFull):
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"task_id": taskID,
				"status":  core.StatusFailed,
				"error":   err.Error(),
			})
		case errors.Is(err, orchestrator.ErrTextEmpty),
			errors.Is(err, orchestrator.ErrVoiceEmpty),
			errors.Is(err, orchestrator.ErrBucketEmpty):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}

		return
	}

	c.JSON(http.StatusOK, gin.H{"task_id": taskID, "status": core.StatusPending})
}

func (s *Server) handleTaskStatus(c *gin.Context) {
	taskID := c.Param("task_id")
	mode := c.DefaultQuery("mode", "url")

	task, err := s.tasks.Status(c.Request.Context(), taskID)
	if err != nil {
		if errors.Is(err, core.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})

			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	switch mode {
	case "url":
		s.renderTaskStatus(c, task)
	case "stream":
		s.streamTaskAudio(c, task)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be 'url' or 'stream'"})
	}
}

// renderTaskStatus reports the task record as JSON; completed tasks carry a
// signed, expiring download link.
func (s *Server) renderTaskStatus(c *gin.Context, task core.Task) {
	response := gin.H{
		"task_id":    task.ID,
		"status":     task.Status,
		"message":    task.Message,
		"duration":   task.Duration,
		"voice_rate": task.VoiceRate,
	}

	if task.Error != "" {
		response["error"] = task.Error
	}

	if task.Status == core.StatusCompleted {
		downloadURL, err := s.objects.PresignedGetURL(
			task.BucketName, task.ObjectName, s.opts.DownloadTTL,
		)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

			return
		}

		response["download_url"] = downloadURL
	}

	c.JSON(http.StatusOK, response)
}

// streamTaskAudio re-fetches the artifact from object storage on every call;
// the temp file from synthesis is long gone.
func (s *Server) streamTaskAudio(c *gin.Context, task core.Task) {
	if task.Status != core.StatusCompleted {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "task is not completed",
			"status": task.Status,
		})

		return
	}

	data, err := s.objects.Download(c.Request.Context(), task.BucketName, task.ObjectName)
	if err != nil {
		if errors.Is(err, core.ErrObjectNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "audio artifact not found"})

			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	c.Data(http.StatusOK, audioContentType, data)
}

func (s *Server) handleDownload(c *gin.Context) {
	bucket := c.Param("bucket")
	object := strings.TrimPrefix(c.Param("object"), "/")
	signature := c.Query("signature")

	expires, err := strconv.ParseInt(c.Query("expires"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expires parameter"})

		return
	}

	if !s.verifier.Verify(bucket, object, expires, signature) {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid or expired signature"})

		return
	}

	data, err := s.objects.Download(c.Request.Context(), bucket, object)
	if err != nil {
		if errors.Is(err, core.ErrObjectNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})

			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	c.Data(http.StatusOK, audioContentType, data)
}

func (s *Server) renderSynthesisError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrRateOutOfRange),
		errors.Is(err, core.ErrRateSearchExhausted):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrProxyPoolExhausted):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// normalizeVolume accepts either the engine's percent-string form ("+0%",
// "-10%") or a numeric multiplier, which is converted the same way as the
// rate.
func normalizeVolume(raw string) string {
	if raw == "" {
		return defaultVolume
	}

	multiplier, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}

	return tts.ConvertRateToPercent(multiplier)
}

func floatQuery(c *gin.Context, name string, fallback float64) (float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter: %q", name, raw)
	}

	return value, nil
}

// flushWriter pushes each audio chunk to the client as soon as it is written.
type flushWriter struct {
	w gin.ResponseWriter
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	f.w.Flush()

	return n, err
}
