package journal_test

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/journal"
	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/testutils"
)

// fakeBrokerConn plays both broker and controller; partition metadata
// becomes visible once CreateTopics records the topic.
type fakeBrokerConn struct {
	partitions map[string]int
	created    []kafka.TopicConfig
	createErr  error
	closed     int
}

func (c *fakeBrokerConn) Controller() (kafka.Broker, error) {
	return kafka.Broker{Host: "ctrl", Port: 9092}, nil
}

func (c *fakeBrokerConn) Close() error {
	c.closed++
	return nil
}

func (c *fakeBrokerConn) CreateTopics(topics ...kafka.TopicConfig) error {
	if c.createErr != nil {
		return c.createErr
	}
	for _, t := range topics {
		c.created = append(c.created, t)
		c.partitions[t.Topic] = t.NumPartitions
	}
	return nil
}

func (c *fakeBrokerConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	n := c.partitions[topics[0]]
	if n == 0 {
		return nil, errors.New("unknown topic")
	}
	parts := make([]kafka.Partition, n)
	for i := range parts {
		parts[i] = kafka.Partition{Topic: topics[0], ID: i}
	}
	return parts, nil
}

type fakeBrokerDialer struct {
	conn    *fakeBrokerConn
	failing map[string]error
	dialed  []string
}

func (d *fakeBrokerDialer) DialContext(_ context.Context, _ string, address string) (journal.KafkaConn, error) {
	d.dialed = append(d.dialed, address)
	if err, ok := d.failing[address]; ok {
		return nil, err
	}
	return d.conn, nil
}

func TestEnsureTopicCreatesWithConfiguredShape(t *testing.T) {
	conn := &fakeBrokerConn{partitions: map[string]int{}}
	dialer := &fakeBrokerDialer{conn: conn}
	spec := journal.TopicSpec{Name: "market_events", Partitions: 4, ReplicationFactor: 1}

	err := journal.EnsureTopic(zap.NewNop(), dialer, &testutils.MockClock{}, []string{"b1:9092"}, spec)
	if err != nil {
		t.Fatalf("EnsureTopic returned error: %v", err)
	}

	if len(conn.created) != 1 {
		t.Fatalf("Expected one topic created, got %d", len(conn.created))
	}
	tc := conn.created[0]
	if tc.Topic != "market_events" || tc.NumPartitions != 4 || tc.ReplicationFactor != 1 {
		t.Errorf("Topic shape does not match config: %+v", tc)
	}
	// Broker first, then the resolved controller
	if len(dialer.dialed) != 2 || dialer.dialed[1] != "ctrl:9092" {
		t.Errorf("Expected controller dial after broker, got %v", dialer.dialed)
	}
}

func TestEnsureTopicSkipsExisting(t *testing.T) {
	conn := &fakeBrokerConn{partitions: map[string]int{"market_events": 4}}
	dialer := &fakeBrokerDialer{conn: conn}
	spec := journal.TopicSpec{Name: "market_events", Partitions: 4, ReplicationFactor: 1}

	err := journal.EnsureTopic(zap.NewNop(), dialer, &testutils.MockClock{}, []string{"b1:9092"}, spec)
	if err != nil {
		t.Fatalf("EnsureTopic returned error: %v", err)
	}
	if len(conn.created) != 0 {
		t.Errorf("Expected no creation for existing topic, got %+v", conn.created)
	}
	if len(dialer.dialed) != 1 {
		t.Errorf("Expected no controller dial, got %v", dialer.dialed)
	}
}

func TestEnsureTopicFallsBackAcrossBrokers(t *testing.T) {
	conn := &fakeBrokerConn{partitions: map[string]int{"market_events": 1}}
	dialer := &fakeBrokerDialer{conn: conn, failing: map[string]error{"b1:9092": errors.New("refused")}}
	spec := journal.TopicSpec{Name: "market_events", Partitions: 1, ReplicationFactor: 1}

	err := journal.EnsureTopic(zap.NewNop(), dialer, &testutils.MockClock{}, []string{"b1:9092", "b2:9092"}, spec)
	if err != nil {
		t.Fatalf("EnsureTopic returned error: %v", err)
	}
	if len(dialer.dialed) != 2 {
		t.Errorf("Expected fallback to second broker, got %v", dialer.dialed)
	}
}

func TestEnsureTopicAllBrokersDown(t *testing.T) {
	dialer := &fakeBrokerDialer{failing: map[string]error{"b1:9092": errors.New("refused")}}

	err := journal.EnsureTopic(zap.NewNop(), dialer, &testutils.MockClock{}, []string{"b1:9092"}, journal.TopicSpec{Name: "market_events"})
	if err == nil {
		t.Fatal("Expected error when no broker answers")
	}
}

func TestEnsureTopicNeverVisible(t *testing.T) {
	conn := &fakeBrokerConn{partitions: map[string]int{}, createErr: errors.New("not authorized")}
	dialer := &fakeBrokerDialer{conn: conn}
	spec := journal.TopicSpec{Name: "market_events", Partitions: 2, ReplicationFactor: 1}

	err := journal.EnsureTopic(zap.NewNop(), dialer, &testutils.MockClock{}, []string{"b1:9092"}, spec)
	if err == nil {
		t.Fatal("Expected error when topic never appears")
	}
}
