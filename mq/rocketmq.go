package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"github.com/rs/zerolog/log"
)

// TopicVoteEvents 投票事件主题，供下游审计/导出系统订阅
const TopicVoteEvents = "vote_events"

// RocketProducer 把事件镜像发送到RocketMQ
type RocketProducer struct {
	producer rocketmq.Producer
}

// NewRocketProducer 创建并启动RocketMQ生产者
func NewRocketProducer(nameServer string) (*RocketProducer, error) {
	p, err := rocketmq.NewProducer(
		producer.WithNameServer([]string{nameServer}),
		producer.WithGroupName("kpr_vote_producer"),
		producer.WithRetry(2),
		producer.WithSendMsgTimeout(10*time.Second),
		producer.WithVIPChannel(false),
	)
	if err != nil {
		return nil, fmt.Errorf("创建RocketMQ生产者失败: %w", err)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf("启动RocketMQ生产者失败: %w", err)
	}

	log.Info().Str("namesrv", nameServer).Msg("RocketMQ生产者初始化成功")
	return &RocketProducer{producer: p}, nil
}

// Publish 同步发送事件，同一选民的事件使用相同分区键保证顺序
func (p *RocketProducer) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	message := primitive.NewMessage(TopicVoteEvents, body)
	message.WithTag(e.Type)
	message.WithKeys([]string{e.MessageID})
	if e.VoterID != "" {
		message.WithShardingKey(e.VoterID)
	}

	res, err := p.producer.SendSync(ctx, message)
	if err != nil {
		return fmt.Errorf("发送消息失败: %w", err)
	}

	log.Debug().Str("msg_id", res.MsgID).Str("message_id", e.MessageID).Msg("RocketMQ发送消息成功")
	return nil
}

// Shutdown 关闭生产者
func (p *RocketProducer) Shutdown() error {
	return p.producer.Shutdown()
}
