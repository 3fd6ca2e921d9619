package kafka

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/IBM/sarama"
)

// Producer 销售事件的同步发布端
// 用同步发送：开单事务已经提交，事件发没发出去必须当场知道并留下日志
type Producer struct {
	producer sarama.SyncProducer
}

func NewProducer(brokers []string, config *sarama.Config) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return &Producer{producer: producer}, nil
}

// SendSale 发布一笔销售，以店铺ID做分区key，同一家店的销售事件保持有序
func (p *Producer) SendSale(topic string, sale SaleMessage) error {
	payload, err := json.Marshal(sale)
	if err != nil {
		return fmt.Errorf("marshal sale event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(fmt.Sprintf("shop-%d", sale.ShopID)),
		Value: sarama.ByteEncoder(payload),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return err
	}

	log.Printf("Sale event for bill %d published to partition %d at offset %d", sale.BillID, partition, offset)
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
