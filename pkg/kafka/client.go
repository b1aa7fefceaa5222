// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"docsage-go/internal/config"
	"docsage-go/pkg/log"
	"docsage-go/pkg/retry"
	"docsage-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.FileProcessingTask) error
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// ProduceFileTask 发送一个文件处理任务到 Kafka。以 file_id 作为消息 key，同一文件的任务落在同一分区。
func ProduceFileTask(ctx context.Context, task tasks.FileProcessingTask) error {
	if producer == nil {
		return fmt.Errorf("kafka producer not initialized")
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.FileID),
		Value: taskBytes,
	})
}

// CloseProducer 关闭生产者。
func CloseProducer() error {
	if producer == nil {
		return nil
	}
	return producer.Close()
}

// messageReader 是消费循环需要的 kafka.Reader 能力。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// handleTask 在提交 offset 之前就地重试任务。
// 带 GroupID 的 Reader 不会重投未提交的消息，后续消息提交后 offset 会越过它，
// 所以失败的任务必须在这里重试完，而不是指望 Kafka 重投。
// 返回 false 表示消费者正在退出，消息不提交，重启后会被重新消费。
func handleTask(ctx context.Context, processor TaskProcessor, task tasks.FileProcessingTask, policy retry.Policy) bool {
	err := policy.Do(ctx, func(ctx context.Context) error {
		return processor.Process(ctx, task)
	})
	if err == nil {
		log.Infof("文件任务处理成功: FileID=%s", task.FileID)
		return true
	}
	if ctx.Err() != nil {
		log.Warnf("消费者退出，文件任务未完成，保留 offset: FileID=%s", task.FileID)
		return false
	}
	log.Errorf("文件任务多次失败，放弃并提交 offset: FileID=%s, Error: %v", task.FileID, err)
	return true
}

// StartConsumer 启动一个 Kafka 消费者来处理文件任务，ctx 取消时退出。
// 每条消息最多尝试 cfg.MaxAttempts 次（默认 3），重试间隔取自 backoff。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, backoff retry.Policy) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(cfg.Brokers, ","),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)
	policy := backoff
	policy.MaxAttempts = cfg.MaxAttempts
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}
	consume(ctx, r, processor, policy)

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
}

// consume 逐条处理消息，一条消息处理完（成功或放弃）才会提交并读取下一条。
func consume(ctx context.Context, r messageReader, processor TaskProcessor, policy retry.Policy) {
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("从 Kafka 读取消息失败", err)
			}
			return
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		var task tasks.FileProcessingTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		log.Infof("开始处理文件任务: FileID=%s, FileName=%s", task.FileID, task.FileName)
		if !handleTask(ctx, processor, task, policy) {
			return
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}
