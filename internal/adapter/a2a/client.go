package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sony/gobreaker/v2"

	"prepmate/internal/domain"
	"prepmate/internal/infra/config"
)

const maxRPCBodySize = 4 * 1024 * 1024 // 4MB

// Client submits research queries to the task server and polls them to
// completion. It implements usecase.Delegator.
type Client struct {
	url          string
	http         *http.Client
	breaker      *gobreaker.CircuitBreaker[json.RawMessage]
	pollInterval time.Duration
	maxPolls     int
	logger       *slog.Logger
}

// NewClient creates a delegation client for the research subagent.
func NewClient(cfg config.ResearchConfig, logger *slog.Logger) *Client {
	breaker := gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:    "research-subagent",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		url:          cfg.URL,
		http:         &http.Client{Timeout: 20 * time.Second},
		breaker:      breaker,
		pollInterval: cfg.PollInterval,
		maxPolls:     cfg.MaxPolls,
		logger:       logger,
	}
}

// Research implements usecase.Delegator: submit, poll until terminal, and
// extract the produced markdown.
//
// Each poll hits the server at most once; a task observed terminal at poll N
// costs exactly N polls. A task still running after the poll budget yields
// ErrTimeout; the server side keeps running, but the result is abandoned.
func (c *Client) Research(ctx context.Context, query string) (string, error) {
	taskID, err := c.submit(ctx, query)
	if err != nil {
		return "", err
	}
	c.logger.Info("started subagent task", "task_id", taskID)

	task, err := c.pollUntilDone(ctx, taskID)
	if err != nil {
		return "", err
	}

	markdown := extractText(task)
	if markdown == "" {
		return "", fmt.Errorf("%w: task %s produced no text artifacts", domain.ErrNoContent, taskID)
	}
	return markdown, nil
}

func (c *Client) submit(ctx context.Context, query string) (string, error) {
	params := sendMessageParams{
		Message: Message{
			Role:      "user",
			Parts:     []MessagePart{{Kind: "text", Text: query}},
			Kind:      "message",
			MessageID: "prep-" + ulid.Make().String(),
		},
	}

	result, err := c.rpc(ctx, methodSendMessage, params)
	if err != nil {
		return "", domain.WrapOp("send message", err)
	}

	var task Task
	if err := json.Unmarshal(result, &task); err != nil {
		return "", domain.WrapOp("parse send result", err)
	}
	if task.ID == "" {
		return "", fmt.Errorf("send message: server returned no task id")
	}
	return task.ID, nil
}

func (c *Client) pollUntilDone(ctx context.Context, taskID string) (*Task, error) {
	for attempt := 0; attempt < c.maxPolls; attempt++ {
		c.logger.Debug("polling subagent task", "task_id", taskID, "attempt", attempt+1)

		task, err := c.getTask(ctx, taskID)
		if err != nil {
			return nil, err
		}

		switch task.Status.State {
		case domain.TaskCompleted:
			return task, nil
		case domain.TaskFailed, domain.TaskCanceled, domain.TaskRejected:
			c.logger.Error("subagent task failed", "task_id", taskID, "state", task.Status.State)
			return nil, &domain.TaskFailedError{TaskID: taskID, State: task.Status.State}
		}

		select {
		case <-time.After(c.pollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.logger.Warn("subagent task timed out", "task_id", taskID)
	return nil, fmt.Errorf("%w: task %s still running after %d polls", domain.ErrTimeout, taskID, c.maxPolls)
}

func (c *Client) getTask(ctx context.Context, taskID string) (*Task, error) {
	result, err := c.rpc(ctx, methodGetTask, getTaskParams{TaskID: taskID})
	if err != nil {
		return nil, domain.WrapOp("get task", err)
	}

	var task Task
	if err := json.Unmarshal(result, &task); err != nil {
		return nil, domain.WrapOp("parse task", err)
	}
	return &task, nil
}

// rpc performs one JSON-RPC call through the circuit breaker.
func (c *Client) rpc(ctx context.Context, method string, params any) (json.RawMessage, error) {
	paramsData, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      ulid.Make().String(),
		Method:  method,
		Params:  paramsData,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	return c.breaker.Execute(func() (json.RawMessage, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("post %s: %w", method, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxRPCBodySize))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%s failed (HTTP %d): %s", method, resp.StatusCode, body)
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(body, &rpcResp); err != nil {
			return nil, fmt.Errorf("parse response: %w", err)
		}
		if rpcResp.Error != nil {
			return nil, fmt.Errorf("%s error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
		}
		return rpcResp.Result, nil
	})
}

// extractText concatenates the text parts of every artifact, in order.
// Partial results from multi-artifact tasks all contribute.
func extractText(task *Task) string {
	var out string
	for _, artifact := range task.Artifacts {
		for _, part := range artifact.Parts {
			if part.Kind == "text" {
				out += part.Text
			}
		}
	}
	return out
}
