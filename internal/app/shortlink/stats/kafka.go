package stats

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"cutl.local/internal/app/shortlink"
	"cutl.local/internal/platform/metrics"
	"github.com/segmentio/kafka-go"
)

const consumerGroup = "cutl-visits-writer"

// KafkaCollector 把访问记录异步写到 Kafka，多实例部署时由任意一个实例的 KafkaConsumer 落库
type KafkaCollector struct {
	writer *kafka.Writer
}

var _ Collector = (*KafkaCollector)(nil)

func NewKafkaCollector(brokers []string, topic string) *KafkaCollector {
	return &KafkaCollector{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{}, // 同一个短码落在同一分区
			Async:    true,          // 异步发送
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					slog.Error("kafka write failed", "err", err, "count", len(messages))
					metrics.VisitsDropped.WithLabelValues("transport").Add(float64(len(messages)))
				}
			},
		},
	}
}

func (k *KafkaCollector) Collect(v shortlink.Visit) {
	data, err := json.Marshal(v)
	if err != nil {
		metrics.VisitsDropped.WithLabelValues("encode").Inc()
		return
	}
	if err := k.writer.WriteMessages(context.Background(), kafka.Message{Key: []byte(v.Code), Value: data}); err != nil {
		slog.Error("kafka write failed", "err", err)
		metrics.VisitsDropped.WithLabelValues("transport").Inc()
	}
}

func (k *KafkaCollector) Close() {
	if err := k.writer.Close(); err != nil {
		slog.Warn("kafka writer close", "err", err)
	}
}

// messageReader 是 *kafka.Reader 里用到的部分
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type KafkaConsumer struct {
	batcher
	reader messageReader
}

func NewKafkaConsumer(brokers []string, topic string, store VisitWriter) *KafkaConsumer {
	return &KafkaConsumer{
		batcher: batcher{
			store:     store,
			batchSize: defaultBatchSize,
			interval:  defaultInterval,
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  consumerGroup,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
	}
}

// Run 阻塞直到 ctx 取消
func (k *KafkaConsumer) Run(ctx context.Context) {
	defer func() {
		if err := k.reader.Close(); err != nil {
			slog.Warn("kafka reader close", "err", err)
		}
	}()

	msgCh := make(chan shortlink.Visit, k.batchSize)
	go k.read(ctx, msgCh)
	k.run(ctx, msgCh)
}

// read 把 Kafka 消息解码后送进 out，ctx 结束时关闭 out
func (k *KafkaConsumer) read(ctx context.Context, out chan<- shortlink.Visit) {
	defer close(out)
	for {
		msg, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			slog.Error("kafka read failed", "err", err)
			// 避免 broker 不可用时空转
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		var v shortlink.Visit
		if err := json.Unmarshal(msg.Value, &v); err != nil || v.Code == "" {
			slog.Error("kafka: bad visit message", "err", err, "offset", msg.Offset)
			metrics.VisitsDropped.WithLabelValues("decode").Inc()
			continue
		}
		select {
		case out <- v:
		case <-ctx.Done():
			return
		}
	}
}
