package journal

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	topicPollInterval = 200 * time.Millisecond
	topicPollAttempts = 5
)

// TopicSpec describes the journal topic; partitions and replication come
// from KafkaConfig.
type TopicSpec struct {
	Name              string
	Partitions        int
	ReplicationFactor int
}

// EnsureTopic makes sure the journal topic exists before the writer starts,
// creating it when the cluster does not have it and polling until partition
// metadata is visible. The caller decides what a failure means; the daemon
// treats it as journal-off, not fatal.
func EnsureTopic(logger *zap.Logger, dialer KafkaDialer, clock Clock, brokers []string, spec TopicSpec) error {
	if clock == nil {
		clock = RealClock{}
	}
	ctx := context.Background()

	conn, err := dialAny(ctx, dialer, brokers)
	if err != nil {
		return fmt.Errorf("dial brokers: %w", err)
	}
	defer conn.Close()

	if topicVisible(conn, spec.Name) {
		logger.Debug("Journal topic already exists", zap.String("topic", spec.Name))
		return nil
	}

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("resolve controller: %w", err)
	}
	controllerConn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             spec.Name,
		NumPartitions:     spec.Partitions,
		ReplicationFactor: spec.ReplicationFactor,
	})
	if err != nil {
		// Racing another instance is fine as long as the topic shows up below
		logger.Info("Topic creation returned error, checking visibility", zap.Error(err))
	} else {
		logger.Info("Journal topic created",
			zap.String("topic", spec.Name),
			zap.Int("partitions", spec.Partitions))
	}

	for i := 0; i < topicPollAttempts; i++ {
		clock.Sleep(topicPollInterval)
		if topicVisible(conn, spec.Name) {
			return nil
		}
	}
	return fmt.Errorf("topic %s not visible after creation", spec.Name)
}

// dialAny returns the first broker that answers
func dialAny(ctx context.Context, dialer KafkaDialer, brokers []string) (KafkaConn, error) {
	var lastErr error
	for _, addr := range brokers {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no brokers configured")
	}
	return nil, lastErr
}

func topicVisible(conn KafkaConn, topic string) bool {
	partitions, err := conn.ReadPartitions(topic)
	return err == nil && len(partitions) > 0
}
