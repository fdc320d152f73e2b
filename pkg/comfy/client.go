// Package comfy talks to the local ComfyUI engine: reachability probing, graph
// submission, and the polling state machine that watches a submission through
// to a terminal state. The /history endpoint is the single source of truth for
// completion; /queue is advisory and only feeds progress logging.
package comfy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"multitalk-worker/log"
	apperrors "multitalk-worker/pkg/errors"
	"multitalk-worker/pkg/workflow"
)

// Config controls engine client timing. Zero values fall back to defaults.
type Config struct {
	BaseURL string

	HealthRetries int           // reachability probe attempts
	HealthDelay   time.Duration // delay between probe attempts
	HealthTimeout time.Duration // per-probe timeout

	SubmitTimeout time.Duration // graph submission timeout

	PollTimeout    time.Duration // total polling budget
	PollInterval   time.Duration // idle wait between history checks
	TransientDelay time.Duration // wait after a transient poll transport error
	QueryTimeout   time.Duration // per-request timeout inside the poll loop
}

// DefaultConfig returns production timing against baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		HealthRetries:  50,
		HealthDelay:    500 * time.Millisecond,
		HealthTimeout:  5 * time.Second,
		SubmitTimeout:  30 * time.Second,
		PollTimeout:    600 * time.Second,
		PollInterval:   2 * time.Second,
		TransientDelay: 5 * time.Second,
		QueryTimeout:   10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig(c.BaseURL)
	if c.HealthRetries <= 0 {
		c.HealthRetries = def.HealthRetries
	}
	if c.HealthDelay <= 0 {
		c.HealthDelay = def.HealthDelay
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = def.HealthTimeout
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = def.SubmitTimeout
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = def.PollTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.TransientDelay <= 0 {
		c.TransientDelay = def.TransientDelay
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = def.QueryTimeout
	}
	return c
}

// Client is the engine liaison.
type Client struct {
	cfg  Config
	http *resty.Client
}

// NewClient creates an engine client. baseURL in cfg is required.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:  cfg.withDefaults(),
		http: resty.New(),
	}
}

// WaitReachable probes the engine root until it answers 200 or the attempt
// budget runs out. Exhausting retries fails the whole job.
func (c *Client) WaitReachable() error {
	for i := 0; i < c.cfg.HealthRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HealthTimeout)
		resp, err := c.http.R().SetContext(ctx).Get(c.cfg.BaseURL)
		cancel()
		if err == nil && resp.StatusCode() == 200 {
			log.GetLogger().Info("engine reachable", zap.String("url", c.cfg.BaseURL))
			return nil
		}
		time.Sleep(c.cfg.HealthDelay)
	}
	return apperrors.Newf(apperrors.CodeEngineUnreachable,
		"Engine not reachable at %s after %d attempts", c.cfg.BaseURL, c.cfg.HealthRetries)
}

type submitResponse struct {
	PromptID   string          `json:"prompt_id"`
	Error      json.RawMessage `json:"error"`
	NodeErrors json.RawMessage `json:"node_errors"`
}

// SubmitWorkflow posts the bound graph and returns the engine's correlation
// identifier. Engine-reported error detail is surfaced verbatim.
func (c *Client) SubmitWorkflow(graph workflow.Graph) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SubmitTimeout)
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{"prompt": graph}).
		Post(c.cfg.BaseURL + "/prompt")
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeEngineRejected, "Failed to submit workflow", err)
	}
	if resp.StatusCode() != 200 {
		return "", apperrors.Newf(apperrors.CodeEngineRejected,
			"Failed to submit workflow: HTTP %d", resp.StatusCode())
	}

	var body submitResponse
	if err = json.Unmarshal(resp.Body(), &body); err != nil {
		return "", apperrors.Wrap(apperrors.CodeEngineRejected, "Cannot parse submission response", err)
	}
	if body.PromptID == "" {
		return "", apperrors.Newf(apperrors.CodeEngineRejected,
			"Workflow rejected: %s", rejectionDetail(body))
	}

	log.GetLogger().Info("workflow submitted", zap.String("prompt_id", body.PromptID))
	return body.PromptID, nil
}

func rejectionDetail(body submitResponse) string {
	if len(body.Error) > 0 && string(body.Error) != "null" {
		return string(body.Error)
	}
	if len(body.NodeErrors) > 0 && string(body.NodeErrors) != "null" {
		return string(body.NodeErrors)
	}
	return "Unknown error"
}

type queueResponse struct {
	QueueRunning []json.RawMessage `json:"queue_running"`
	QueuePending []json.RawMessage `json:"queue_pending"`
}

type historyEntry struct {
	Status struct {
		StatusStr string            `json:"status_str"`
		Messages  []json.RawMessage `json:"messages"`
	} `json:"status"`
	Outputs map[string]nodeOutput `json:"outputs"`
}

type nodeOutput struct {
	Gifs []artifactRef `json:"gifs"`
}

type artifactRef struct {
	Filename string `json:"filename"`
}

// PollResult watches history until the submission identified by promptID
// reaches a terminal state. nodeID names the output node expected to publish
// the artifact. Transient transport errors on either endpoint are retried
// in-loop; only the total budget ends the wait.
func (c *Client) PollResult(promptID, nodeID string) PollOutcome {
	deadline := time.Now().Add(c.cfg.PollTimeout)
	lastQueueLog := time.Time{}

	for time.Now().Before(deadline) {
		c.logQueueDepth(&lastQueueLog)

		history, err := c.fetchHistory()
		if err != nil {
			// Transport or decode fault: back off a little longer
			time.Sleep(c.cfg.TransientDelay)
			continue
		}
		if history == nil {
			// Engine answered non-200: keep the normal poll cadence
			time.Sleep(c.cfg.PollInterval)
			continue
		}

		entry, present := history[promptID]
		if !present {
			time.Sleep(c.cfg.PollInterval)
			continue
		}

		return decodeTerminalEntry(entry, nodeID)
	}

	return TimedOut(fmt.Sprintf("Workflow timed out after %d seconds", int(c.cfg.PollTimeout.Seconds())))
}

// logQueueDepth is best-effort progress observability; its failure never
// affects the poll loop.
func (c *Client) logQueueDepth(lastLog *time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.QueryTimeout)
	defer cancel()

	resp, err := c.http.R().SetContext(ctx).Get(c.cfg.BaseURL + "/queue")
	if err != nil || resp.StatusCode() != 200 {
		return
	}

	var queue queueResponse
	if json.Unmarshal(resp.Body(), &queue) != nil {
		return
	}

	if time.Since(*lastLog) >= 30*time.Second {
		*lastLog = time.Now()
		log.GetLogger().Info("engine queue",
			zap.Int("running", len(queue.QueueRunning)),
			zap.Int("pending", len(queue.QueuePending)))
	}
}

// fetchHistory returns a nil map without error when the engine answers
// non-200; the caller treats that as an ordinary empty poll round.
func (c *Client) fetchHistory() (map[string]historyEntry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.QueryTimeout)
	defer cancel()

	resp, err := c.http.R().SetContext(ctx).Get(c.cfg.BaseURL + "/history")
	if err != nil {
		log.GetLogger().Warn("history poll error, retrying", zap.Error(err))
		return nil, err
	}
	if resp.StatusCode() != 200 {
		return nil, nil
	}

	history := map[string]historyEntry{}
	if err = json.Unmarshal(resp.Body(), &history); err != nil {
		log.GetLogger().Warn("history decode error, retrying", zap.Error(err))
		return nil, err
	}
	return history, nil
}

func decodeTerminalEntry(entry historyEntry, nodeID string) PollOutcome {
	if entry.Status.StatusStr == "error" {
		if details := executionErrorDetails(entry.Status.Messages); len(details) > 0 {
			return Failed("Workflow execution error: " + strings.Join(details, "; "))
		}
		return Failed("Workflow execution failed with unknown error")
	}

	if out, ok := entry.Outputs[nodeID]; ok && len(out.Gifs) > 0 {
		return Completed(out.Gifs[0].Filename)
	}

	if len(entry.Outputs) == 0 {
		return Failed("Workflow completed but produced no outputs")
	}

	nodes := lo.Keys(entry.Outputs)
	sort.Strings(nodes)
	return Failed(fmt.Sprintf("Node %s has no output. Available outputs from nodes: %v", nodeID, nodes))
}

// executionErrorDetails extracts (nodeType: exceptionMessage) pairs from the
// engine's status messages. Each message is a [kind, payload] pair.
func executionErrorDetails(messages []json.RawMessage) []string {
	var details []string
	for _, raw := range messages {
		var msg []json.RawMessage
		if json.Unmarshal(raw, &msg) != nil || len(msg) < 2 {
			continue
		}

		var kind string
		if json.Unmarshal(msg[0], &kind) != nil || kind != "execution_error" {
			continue
		}

		var info struct {
			NodeType         string `json:"node_type"`
			ExceptionMessage string `json:"exception_message"`
		}
		if json.Unmarshal(msg[1], &info) != nil {
			continue
		}
		if info.NodeType == "" {
			info.NodeType = "Unknown"
		}
		if info.ExceptionMessage == "" {
			info.ExceptionMessage = "Unknown error"
		}
		details = append(details, fmt.Sprintf("%s: %s", info.NodeType, info.ExceptionMessage))
	}
	return details
}
