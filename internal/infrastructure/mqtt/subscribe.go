package mqtt

import (
	"fmt"
)

// Subscribe registers a handler for messages matching the topic filter.
//
// Filters may use '+' for a single level and '#' for the remaining levels.
// The handler is called in a separate goroutine for each received message.
func (h *Handler) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := ValidateTopic(topic, true); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	if !h.IsConnected() {
		return ErrNotConnected
	}
	client := h.getClient()
	if client == nil {
		return ErrNotConnected
	}

	h.subMu.Lock()
	h.subscriptions[topic] = subscription{
		topic:   topic,
		qos:     qos,
		handler: handler,
	}
	h.subMu.Unlock()

	token := client.Subscribe(topic, qos, h.wrapHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		h.forget(topic)
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		h.forget(topic)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// Unsubscribe removes a subscription and stops receiving messages for a filter.
//
// Messages already in flight may still be delivered.
func (h *Handler) Unsubscribe(topic string) error {
	if err := ValidateTopic(topic, true); err != nil {
		return err
	}

	if !h.IsConnected() {
		return ErrNotConnected
	}
	client := h.getClient()
	if client == nil {
		return ErrNotConnected
	}

	h.forget(topic)

	token := client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

func (h *Handler) forget(topic string) {
	h.subMu.Lock()
	delete(h.subscriptions, topic)
	h.subMu.Unlock()
}

// SubscriptionCount returns the number of active subscriptions.
func (h *Handler) SubscriptionCount() int {
	h.subMu.RLock()
	defer h.subMu.RUnlock()
	return len(h.subscriptions)
}

// HasSubscription checks if a subscription exists for the exact filter.
func (h *Handler) HasSubscription(topic string) bool {
	h.subMu.RLock()
	defer h.subMu.RUnlock()
	_, exists := h.subscriptions[topic]
	return exists
}
