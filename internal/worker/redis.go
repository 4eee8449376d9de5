package worker

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"webbuilder/internal/redis"
)

const redisStateChannel = "webbuilder:state"

// Scopes carried by state messages.
const (
	ScopeConversation = "conversation"
	ScopeClear        = "clear"
)

// StateMessage announces that an instance committed a mutation.
type StateMessage struct {
	InstanceID string `json:"instance_id"`
	Scope      string `json:"scope"`
}

// StateBus broadcasts agent mutations between instances sharing a journal.
// A bus without a client does nothing.
type StateBus struct {
	client     *redis.Client
	instanceID string
	log        zerolog.Logger
}

func NewStateBus(client *redis.Client, instanceID string, log zerolog.Logger) *StateBus {
	return &StateBus{client: client, instanceID: instanceID, log: log}
}

// InstanceID identifies this process on the bus.
func (b *StateBus) InstanceID() string {
	if b == nil {
		return ""
	}
	return b.instanceID
}

// Publish broadcasts scope on behalf of this instance.
func (b *StateBus) Publish(ctx context.Context, scope string) {
	if b == nil || b.client == nil {
		return
	}
	payload, err := json.Marshal(StateMessage{InstanceID: b.instanceID, Scope: scope})
	if err != nil {
		b.log.Error().Err(err).Msg("state message marshal failed")
		return
	}
	if err := b.client.Publish(ctx, redisStateChannel, payload); err != nil {
		b.log.Warn().Err(err).Str("scope", scope).Msg("state publish failed")
	}
}

// Listen subscribes and calls handler for every message from another
// instance until ctx is done. It returns once the subscription is active.
func (b *StateBus) Listen(ctx context.Context, handler func(StateMessage)) error {
	if b == nil || b.client == nil || handler == nil {
		return nil
	}
	pubsub, err := b.client.Subscribe(ctx, redisStateChannel)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		pubsub.Close()
	}()
	go func() {
		for msg := range pubsub.Channel() {
			var state StateMessage
			if err := json.Unmarshal([]byte(msg.Payload), &state); err != nil {
				b.log.Warn().Err(err).Msg("state message decode failed")
				continue
			}
			if state.InstanceID == b.instanceID {
				continue
			}
			handler(state)
		}
	}()
	return nil
}
