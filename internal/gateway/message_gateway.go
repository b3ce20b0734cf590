package gateway

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"
)

// MessageSender delivers an outbound chat message to a customer. Implemented
// by the conversational front-end's channel client in production.
type MessageSender interface {
	Send(ctx context.Context, recipient, body string) error
}

// SimulatedChatGateway is a stand-in delivery channel with a configurable
// failure rate, used for wiring and load tests.
type SimulatedChatGateway struct {
	FailureRate float64 // between 0.0 and 1.0
	Delay       time.Duration
}

func NewSimulatedChatGateway(failureRate float64) *SimulatedChatGateway {
	return &SimulatedChatGateway{
		FailureRate: failureRate,
		Delay:       100 * time.Millisecond,
	}
}

var errDeliveryFailed = errors.New("message delivery failed")

func (g *SimulatedChatGateway) Send(ctx context.Context, recipient, body string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(g.Delay):
	}

	if rand.Float64() < g.FailureRate {
		return errDeliveryFailed
	}

	log.Printf("Simulated Chat Gateway: delivered %d bytes to %s", len(body), recipient)
	return nil
}
