package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog/log"

	"example.com/northstar/services/custops/config"
	"example.com/northstar/services/custops/internal/commands"
	"example.com/northstar/services/custops/internal/domain"
	"example.com/northstar/services/custops/internal/metrics"
)

// Command names accepted over the bus
const (
	CreateCase          = "CreateCase"
	AssignCase          = "AssignCase"
	ChangeCaseStatus    = "ChangeCaseStatus"
	ChangeCaseSeverity  = "ChangeCaseSeverity"
	AssessCaseImpact    = "AssessCaseImpact"
	ResolveCase         = "ResolveCase"
	CloseCase           = "CloseCase"
	ReopenCase          = "ReopenCase"
	LogCustomerMessage  = "LogCustomerMessage"
	RecordAgentResponse = "RecordAgentResponse"
	AddCaseTag          = "AddCaseTag"
	RemoveCaseTag       = "RemoveCaseTag"
	StartLifecycle      = "StartLifecycle"
	AdvanceStage        = "AdvanceStage"
	SetLifecycleOwner   = "SetLifecycleOwner"
	SetTier             = "SetTier"
	CreateSuggestion    = "CreateSuggestion"
	AcceptSuggestion    = "AcceptSuggestion"
	DismissSuggestion   = "DismissSuggestion"
)

// CommandEnvelope is the common inbound message structure
type CommandEnvelope struct {
	Command string          `json:"command"`
	Actor   domain.Actor    `json:"actor"`
	Data    json.RawMessage `json:"data"`
}

// Processor dispatches inbound command envelopes to the command layer
type Processor struct {
	cases      *commands.CaseCommands
	lifecycles *commands.LifecycleCommands
	metrics    *metrics.Metrics
}

// NewProcessor creates a new message processor
func NewProcessor(cases *commands.CaseCommands, lifecycles *commands.LifecycleCommands, m *metrics.Metrics) *Processor {
	return &Processor{
		cases:      cases,
		lifecycles: lifecycles,
		metrics:    m,
	}
}

// ProcessMessage handles one inbound message
func (p *Processor) ProcessMessage(ctx context.Context, message *azservicebus.ReceivedMessage) error {
	var env CommandEnvelope
	if err := json.Unmarshal(message.Body, &env); err != nil {
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	log.Info().
		Str("command", env.Command).
		Str("actorType", string(env.Actor.Type)).
		Msg("Processing command message")

	result, err := p.dispatch(ctx, env)
	if err != nil {
		p.metrics.RecordError("commands." + env.Command)
		return err
	}

	p.metrics.RecordSuccess("commands." + env.Command)
	log.Info().
		Str("command", env.Command).
		Str("aggregateID", result.AggregateID).
		Int("events", len(result.EventIDs)).
		Msg("Command message processed")

	return nil
}

func (p *Processor) dispatch(ctx context.Context, env CommandEnvelope) (commands.Result, error) {
	switch env.Command {
	// Case commands
	case CreateCase:
		var input commands.CreateCaseInput
		if err := json.Unmarshal(env.Data, &input); err != nil {
			return commands.Result{}, err
		}
		return p.cases.CreateCase(ctx, env.Actor, input)

	case AssignCase:
		var input commands.AssignCaseInput
		if err := json.Unmarshal(env.Data, &input); err != nil {
			return commands.Result{}, err
		}
		return p.cases.AssignCase(ctx, env.Actor, input)

	case ChangeCaseStatus:
		var input commands.ChangeStatusInput
		if err := json.Unmarshal(env.Data, &input); err != nil {
			return commands.Result{}, err
		}
		return p.cases.ChangeStatus(ctx, env.Actor, input)

	case ChangeCaseSeverity:
		var input commands.ChangeSeverityInput
		if err := json.Unmarshal(env.Data, &input); err != nil {
			return commands.Result{}, err
		}
		return p.cases.ChangeSeverity(ctx, env.Actor, input)

	case AssessCaseImpact:
		var input commands.AssessImpactInput
		if err := json.Unmarshal(env.Data, &input); err != nil {
			return commands.Result{}, err
		}
		return p.cases.AssessImpact(ctx, env.Actor, input)

	case ResolveCase:
		var input commands.ResolveCaseInput
		if err := json.Unmarshal(env.Data, &input); err != nil {
			return commands.Result{}, err
		}
		return p.cases.ResolveCase(ctx, env.Actor, input)

	case CloseCase:
		var input commands.CloseCaseInput
		if err := json.Unmarshal(env.Data, &input); err != nil {
			return commands.Result{}, err
		}
		return p.cases.CloseCase(ctx, env.Actor, input)

	case ReopenCase:
		var input commands.ReopenCaseInput
		if err := json.Unmarshal(env.Data, &input); err != nil {
			return commands.Result{}, err
		}
		return p.cases.ReopenCase(ctx, env.Actor, input)

	case LogCustomerMessage:
		var input commands.LogCustomerMessageInput
		if err := json.Unmarshal(env.Data, &input); err != nil {
			return commands.Result{}, err
		}
		return p.cases.LogCustomerMessage(ctx, env.Actor, input)

	case RecordAgentResponse:
		var input commands.RecordAgentResponseInput
		if err := json.Unmarshal(env.Data, &input); err != nil {
			return commands.Result{}, err
		}
		return p.cases.RecordAgentResponse(ctx, env.Actor, input)

	case AddCaseTag:
		var input commands.TagInput
		if err := json.Unmarshal(env.Data, &input); err != nil {
			return commands.Result{}, err
		}
		return p.cases.AddTag(ctx, env.Actor, input)

	case RemoveCaseTag:
		var input commands.TagInput
		if err := json.Unmarshal(env.Data, &input); err != nil {
			return commands.Result{}, err
		}
		return p.cases.RemoveTag(ctx, env.Actor, input)

	// Lifecycle commands
	case StartLifecycle:
		var input commands.StartLifecycleInput
		if err := json.Unmarshal(env.Data, &input); err != nil {
			return commands.Result{}, err
		}
		return p.lifecycles.StartLifecycle(ctx, env.Actor, input)

	case AdvanceStage:
		var input commands.AdvanceStageInput
		if err := json.Unmarshal(env.Data, &input); err != nil {
			return commands.Result{}, err
		}
		return p.lifecycles.AdvanceStage(ctx, env.Actor, input)

	case SetLifecycleOwner:
		var input commands.SetOwnerInput
		if err := json.Unmarshal(env.Data, &input); err != nil {
			return commands.Result{}, err
		}
		return p.lifecycles.SetOwner(ctx, env.Actor, input)

	case SetTier:
		var input commands.SetTierInput
		if err := json.Unmarshal(env.Data, &input); err != nil {
			return commands.Result{}, err
		}
		return p.lifecycles.SetTier(ctx, env.Actor, input)

	case CreateSuggestion:
		var input commands.CreateSuggestionInput
		if err := json.Unmarshal(env.Data, &input); err != nil {
			return commands.Result{}, err
		}
		return p.lifecycles.CreateSuggestion(ctx, env.Actor, input)

	case AcceptSuggestion:
		var input commands.SuggestionDecisionInput
		if err := json.Unmarshal(env.Data, &input); err != nil {
			return commands.Result{}, err
		}
		return p.lifecycles.AcceptSuggestion(ctx, env.Actor, input)

	case DismissSuggestion:
		var input commands.SuggestionDecisionInput
		if err := json.Unmarshal(env.Data, &input); err != nil {
			return commands.Result{}, err
		}
		return p.lifecycles.DismissSuggestion(ctx, env.Actor, input)

	default:
		return commands.Result{}, fmt.Errorf("unsupported command: %s", env.Command)
	}
}

// Listener receives messages from the command queue and feeds them to
// the processor
type Listener struct {
	client    *azservicebus.Client
	receiver  *azservicebus.Receiver
	processor *Processor
}

// NewListener creates a receiver on the configured command queue
func NewListener(cfg config.AzureConfig, processor *Processor) (*Listener, error) {
	if cfg.QueueConnStr == "" {
		return nil, fmt.Errorf("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus client: %w", err)
	}

	receiver, err := client.NewReceiverForQueue(cfg.QueueName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus receiver: %w", err)
	}

	return &Listener{
		client:    client,
		receiver:  receiver,
		processor: processor,
	}, nil
}

// Run receives and processes messages until the context is cancelled.
// Validation and guardrail rejections complete the message: redelivery
// cannot make a rejected command valid. Other failures abandon it for
// redelivery.
func (l *Listener) Run(ctx context.Context) error {
	for {
		messages, err := l.receiver.ReceiveMessages(ctx, 10, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Msg("Failed to receive messages")
			continue
		}

		for _, message := range messages {
			err := l.processor.ProcessMessage(ctx, message)
			if err != nil && !domain.IsValidation(err) {
				log.Error().Err(err).Msg("Failed to process message, abandoning")
				if abandonErr := l.receiver.AbandonMessage(ctx, message, nil); abandonErr != nil {
					log.Error().Err(abandonErr).Msg("Failed to abandon message")
				}
				continue
			}
			if err != nil {
				log.Warn().Err(err).Msg("Command rejected")
			}

			if completeErr := l.receiver.CompleteMessage(ctx, message, nil); completeErr != nil {
				log.Error().Err(completeErr).Msg("Failed to complete message")
			}
		}
	}
}

// Close closes the receiver and client
func (l *Listener) Close() error {
	if l.receiver != nil {
		if err := l.receiver.Close(context.Background()); err != nil {
			return err
		}
	}

	if l.client != nil {
		return l.client.Close(context.Background())
	}

	return nil
}
