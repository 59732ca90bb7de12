package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completed(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func pending() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient records calls and lets a test choose each token's outcome.
type fakeClient struct {
	mu sync.Mutex

	connected      bool
	connectToken   *fakeToken
	subscribeToken *fakeToken
	publishErr     error
	// onSubscribe runs after each Subscribe call is recorded, outside the lock.
	onSubscribe func()

	subscriptions map[string]paho.MessageHandler
	subscribeCnt  int
	unsubscribed  []string
	published     []published
	disconnects   int
}

func newFakeClient() *fakeClient {
	return &fakeClient{subscriptions: map[string]paho.MessageHandler{}}
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *fakeClient) Connect() paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectToken != nil {
		if c.connectToken.err == nil {
			c.connected = true
		}
		return c.connectToken
	}
	c.connected = true
	return completed(nil)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnects++
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return completed(c.publishErr)
	}
	c.published = append(c.published, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return completed(nil)
}

func (c *fakeClient) Subscribe(topic string, _ byte, callback paho.MessageHandler) paho.Token {
	c.mu.Lock()
	c.subscribeCnt++
	token := c.subscribeToken
	if token == nil {
		c.subscriptions[topic] = callback
		token = completed(nil)
	}
	hook := c.onSubscribe
	c.mu.Unlock()

	if hook != nil {
		hook()
	}
	return token
}

func (c *fakeClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return completed(nil)
}

func (c *fakeClient) Unsubscribe(topics ...string) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		delete(c.subscriptions, topic)
		c.unsubscribed = append(c.unsubscribed, topic)
	}
	return completed(nil)
}

func (c *fakeClient) AddRoute(string, paho.MessageHandler) {}

func (c *fakeClient) OptionsReader() paho.ClientOptionsReader {
	return paho.ClientOptionsReader{}
}

// deliver simulates the broker pushing a message on topic.
func (c *fakeClient) deliver(topic string, payload []byte) bool {
	c.mu.Lock()
	callback, ok := c.subscriptions[topic]
	c.mu.Unlock()
	if !ok {
		return false
	}
	callback(c, fakeMessage{topic: topic, payload: payload})
	return true
}
