package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"prepmate/internal/domain"
	"prepmate/internal/infra/config"
)

// bedrockConverseAPI abstracts the Bedrock runtime methods for testability.
type bedrockConverseAPI interface {
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// BedrockProvider implements domain.ModelProvider via the AWS Bedrock
// Converse streaming API.
type BedrockProvider struct {
	model     string
	maxTokens int
	client    bedrockConverseAPI
	logger    *slog.Logger
}

// NewBedrockProvider creates a Bedrock provider using the default AWS
// credential chain.
func NewBedrockProvider(ctx context.Context, cfg config.ModelConfig, logger *slog.Logger) (*BedrockProvider, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &BedrockProvider{
		model:     cfg.ID,
		maxTokens: cfg.MaxTokens,
		client:    bedrockruntime.NewFromConfig(awsCfg),
		logger:    logger,
	}, nil
}

// newBedrockProviderWithClient creates a BedrockProvider with an injected
// client (for testing).
func newBedrockProviderWithClient(model string, client bedrockConverseAPI, logger *slog.Logger) *BedrockProvider {
	return &BedrockProvider{model: model, maxTokens: 4096, client: client, logger: logger}
}

// Name implements domain.ModelProvider.
func (p *BedrockProvider) Name() string { return "bedrock" }

// ChatStream implements domain.ModelProvider.
func (p *BedrockProvider) ChatStream(ctx context.Context, req domain.ModelRequest) (<-chan domain.StreamDelta, error) {
	output, err := p.client.ConverseStream(ctx, p.toConverseStreamInput(req))
	if err != nil {
		return nil, mapBedrockError(err)
	}

	ch := make(chan domain.StreamDelta, 16)
	go func() {
		defer close(ch)
		stream := output.GetStream()
		defer stream.Close()

		tracker := newToolIndexTracker()
		for evt := range stream.Events() {
			delta := tracker.process(evt)
			if delta != nil {
				select {
				case ch <- *delta:
				case <-ctx.Done():
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			p.logger.Error("bedrock stream error", "error", err)
			select {
			case ch <- domain.StreamDelta{Err: mapBedrockError(err)}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

// --- request conversion ---

func (p *BedrockProvider) toConverseStreamInput(req domain.ModelRequest) *bedrockruntime.ConverseStreamInput {
	maxTokens := p.maxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	input := &bedrockruntime.ConverseStreamInput{
		ModelId: aws.String(p.model),
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(maxTokens)),
		},
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}

	attachTo := -1
	if req.Attachment != nil {
		attachTo = lastTextRequestIndex(req.Messages)
	}

	for i, m := range req.Messages {
		msg := toConverseMessage(m)
		if msg == nil {
			continue
		}
		if i == attachTo {
			msg.Content = append(msg.Content, documentBlock(req.Attachment))
		}
		input.Messages = append(input.Messages, *msg)
	}

	if len(req.Tools) > 0 {
		input.ToolConfig = toConverseToolConfig(req.Tools)
	}
	return input
}

// lastTextRequestIndex finds the request turn an attachment should travel
// with: the latest request carrying plain text.
func lastTextRequestIndex(msgs []domain.Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if !msgs[i].IsRequest() {
			continue
		}
		for _, part := range msgs[i].Parts {
			if part.Kind == domain.PartText {
				return i
			}
		}
	}
	return -1
}

func toConverseMessage(m domain.Message) *types.Message {
	msg := &types.Message{}

	switch m.Kind {
	case domain.KindRequest:
		msg.Role = types.ConversationRoleUser
		for _, part := range m.Parts {
			switch part.Kind {
			case domain.PartText:
				msg.Content = append(msg.Content, &types.ContentBlockMemberText{Value: part.Text})
			case domain.PartToolReturn:
				msg.Content = append(msg.Content, &types.ContentBlockMemberToolResult{
					Value: types.ToolResultBlock{
						ToolUseId: aws.String(part.ToolCallID),
						Content: []types.ToolResultContentBlock{
							&types.ToolResultContentBlockMemberText{Value: part.Content},
						},
					},
				})
			}
		}

	case domain.KindResponse:
		msg.Role = types.ConversationRoleAssistant
		for _, part := range m.Parts {
			switch part.Kind {
			case domain.PartText:
				msg.Content = append(msg.Content, &types.ContentBlockMemberText{Value: part.Text})
			case domain.PartToolCall:
				var inputDoc map[string]interface{}
				if len(part.Args) > 0 {
					json.Unmarshal(part.Args, &inputDoc)
				}
				if inputDoc == nil {
					inputDoc = map[string]interface{}{}
				}
				msg.Content = append(msg.Content, &types.ContentBlockMemberToolUse{
					Value: types.ToolUseBlock{
						ToolUseId: aws.String(part.ToolCallID),
						Name:      aws.String(part.ToolName),
						Input:     document.NewLazyDocument(inputDoc),
					},
				})
			}
		}

	default:
		return nil
	}

	if len(msg.Content) == 0 {
		return nil
	}
	return msg
}

func documentBlock(att *domain.Attachment) types.ContentBlock {
	name := att.Name
	if name == "" {
		name = "attachment"
	}
	return &types.ContentBlockMemberDocument{
		Value: types.DocumentBlock{
			Format: types.DocumentFormatPdf,
			Name:   aws.String(name),
			Source: &types.DocumentSourceMemberBytes{Value: att.Data},
		},
	}
}

func toConverseToolConfig(tools []domain.ToolSchema) *types.ToolConfiguration {
	var converseTools []types.Tool
	for _, t := range tools {
		var schema map[string]interface{}
		if len(t.Parameters) > 0 {
			json.Unmarshal(t.Parameters, &schema)
		}
		if schema == nil {
			schema = map[string]interface{}{"type": "object"}
		}

		converseTools = append(converseTools, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{
					Value: document.NewLazyDocument(schema),
				},
			},
		})
	}
	return &types.ToolConfiguration{Tools: converseTools}
}

// --- stream conversion ---

// toolIndexTracker maps Bedrock content block indexes to tool call ordinals
// so argument fragments land on the call that announced them.
type toolIndexTracker struct {
	ordinals map[int32]int
	next     int
}

func newToolIndexTracker() *toolIndexTracker {
	return &toolIndexTracker{ordinals: make(map[int32]int)}
}

func (t *toolIndexTracker) process(evt types.ConverseStreamOutput) *domain.StreamDelta {
	switch e := evt.(type) {
	case *types.ConverseStreamOutputMemberContentBlockStart:
		start, ok := e.Value.Start.(*types.ContentBlockStartMemberToolUse)
		if !ok {
			return nil
		}
		ordinal := t.next
		t.next++
		t.ordinals[aws.ToInt32(e.Value.ContentBlockIndex)] = ordinal
		return t.at(ordinal, domain.ToolCall{
			ID:   aws.ToString(start.Value.ToolUseId),
			Name: aws.ToString(start.Value.Name),
		})

	case *types.ConverseStreamOutputMemberContentBlockDelta:
		switch d := e.Value.Delta.(type) {
		case *types.ContentBlockDeltaMemberText:
			return &domain.StreamDelta{Text: d.Value}
		case *types.ContentBlockDeltaMemberToolUse:
			ordinal, ok := t.ordinals[aws.ToInt32(e.Value.ContentBlockIndex)]
			if !ok {
				return nil
			}
			return t.at(ordinal, domain.ToolCall{
				Arguments: json.RawMessage(aws.ToString(d.Value.Input)),
			})
		}
		return nil

	case *types.ConverseStreamOutputMemberMessageStop:
		return &domain.StreamDelta{Done: true}

	default:
		return nil
	}
}

// at builds a delta whose ToolCalls slice carries tc at the given ordinal.
func (t *toolIndexTracker) at(ordinal int, tc domain.ToolCall) *domain.StreamDelta {
	calls := make([]domain.ToolCall, ordinal+1)
	calls[ordinal] = tc
	return &domain.StreamDelta{ToolCalls: calls}
}

// --- error mapping ---

func mapBedrockError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException", "UnrecognizedClientException":
			return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, err)
		case "ThrottlingException", "TooManyRequestsException",
			"ModelNotReadyException", "ServiceUnavailableException",
			"InternalServerException":
			return fmt.Errorf("%w: %s", domain.ErrProviderError, err)
		}
	}

	return domain.WrapOp("bedrock", err)
}
